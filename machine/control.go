package machine

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// resolveControl settles the branch decision and the next program counter.
// Three mutually exclusive targets exist: sequential (pc+4), pc-relative
// (taken branches and jal) and register-relative (jalr, with its low bit
// cleared). The selected 17-bit sum is split into the linked next-pc limbs;
// the carry out of bit 31 is discarded, matching 32-bit wraparound.
func (m *Machine[F]) resolveControl() {
	b := m.b
	d := &m.dec
	one := field.One[F]()
	twoPow16 := field.TwoPowN[F](16)
	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }

	// 32-bit equality, from the per-limb equality flags
	eqLo := b.EqualsTo(vc(m.rs1Val[0]), vc(m.rs2Val[0]))
	eqHi := b.EqualsTo(vc(m.rs1Val[1]), vc(m.rs2Val[1]))
	m.eq32 = m.and(eqLo, eqHi)

	// taken = beq·eq + bne·(1−eq) + bltu·(1−carry) + bgeu·carry, where carry
	// is the adder lanes' borrow-complement of rs1 − rs2. Every product
	// carries a branch sub-opcode flag, so the decision is zero off-branch.
	taken := b.AddBooleanVariable()
	eqC := cs.BooleanConstraint[F](m.eq32)
	notEq := cs.ConstantConstraint(one).Sub(eqC)
	carryC := vc(m.aluCarry[1])
	notCarry := cs.ConstantConstraint(one).Sub(carryC)
	b.AddConstraint(cs.BooleanConstraint[F](d.isBeq).Mul(eqC).
		Add(cs.BooleanConstraint[F](d.isBne).Mul(notEq)).
		Add(cs.BooleanConstraint[F](d.isBltu).Mul(notCarry)).
		Add(cs.BooleanConstraint[F](d.isBgeu).Mul(carryC)).
		SubTerm(cs.BooleanTerm[F](taken)))
	m.bindUints([]cs.Variable{taken.Variable()}, func(in, out []uint64) {
		switch {
		case in[0] == 1:
			out[0] = in[4]
		case in[1] == 1:
			out[0] = 1 - in[4]
		case in[2] == 1:
			out[0] = 1 - in[5]
		case in[3] == 1:
			out[0] = in[5]
		}
	}, d.isBeq.Variable(), d.isBne.Variable(), d.isBltu.Variable(), d.isBgeu.Variable(),
		m.eq32.Variable(), m.aluCarry[1])
	m.taken = taken

	m.tPcImm = m.anyOf(m.taken, d.fam[famJal])
	m.tRs1Imm = d.isJalr
	// sequential is the leftover: exec − taken-target − register-target
	tSeq := b.AddBooleanVariable()
	b.AddConstraint(cs.BooleanConstraint[F](m.Exec).
		SubTerm(cs.BooleanTerm[F](m.tPcImm)).
		SubTerm(cs.BooleanTerm[F](m.tRs1Imm)).
		SubTerm(cs.BooleanTerm[F](tSeq)))
	m.bindUints([]cs.Variable{tSeq.Variable()}, func(in, out []uint64) {
		out[0] = in[0] - in[1] - in[2]
	}, m.Exec.Variable(), m.tPcImm.Variable(), m.tRs1Imm.Variable())
	m.tSeq = tSeq

	// jalr clears bit 0 of rs1+imm: the parity bit is forced by the even
	// quotient decomposition of the raw low sum
	j0 := b.AddBooleanVariable()
	jq := b.AddVariableWithRangeCheck(16)
	b.AddConstraint(vc(m.rs1Val[0]).AddTerm(cs.VariableTerm[F](m.dec.imm[0])).
		SubTerm(cs.BooleanTerm[F](j0)).
		SubTerm(cs.ScaledVariableTerm(field.Uint64[F](2), jq)))
	m.bindUints([]cs.Variable{j0.Variable(), jq}, func(in, out []uint64) {
		s := in[0] + in[1]
		out[0] = s & 1
		out[1] = s >> 1
	}, m.rs1Val[0], m.dec.imm[0])

	flags := []cs.Boolean{m.tSeq, m.tPcImm, m.tRs1Imm}
	sumLo := b.ChooseFromOrthogonalVariants(flags, []cs.Constraint[F]{
		vc(m.Pc[0]).AddTerm(cs.UintTerm[F](4)),
		vc(m.Pc[0]).AddTerm(cs.VariableTerm[F](d.imm[0])),
		vc(m.rs1Val[0]).AddTerm(cs.VariableTerm[F](d.imm[0])).SubTerm(cs.BooleanTerm[F](j0)),
	})
	sumHi := b.ChooseFromOrthogonalVariants(flags, []cs.Constraint[F]{
		vc(m.Pc[1]),
		vc(m.Pc[1]).AddTerm(cs.VariableTerm[F](d.imm[1])),
		vc(m.rs1Val[1]).AddTerm(cs.VariableTerm[F](d.imm[1])),
	})

	m.PcNext = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	pcCarry := b.AddBooleanVariable()
	pcDrop := b.AddBooleanVariable()
	b.AddConstraint(vc(sumLo).
		SubTerm(cs.VariableTerm[F](m.PcNext[0])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, pcCarry.Variable())))
	b.AddConstraint(vc(sumHi).AddTerm(cs.BooleanTerm[F](pcCarry)).
		SubTerm(cs.VariableTerm[F](m.PcNext[1])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, pcDrop.Variable())))
	m.bindUints([]cs.Variable{m.PcNext[0], pcCarry.Variable(), m.PcNext[1], pcDrop.Variable()},
		func(in, out []uint64) {
			out[0] = in[0] & 0xffff
			out[1] = in[0] >> 16
			hi := in[1] + out[1]
			out[2] = hi & 0xffff
			out[3] = hi >> 16
		}, sumLo, sumHi)

	b.AddLinkage(m.PcNext[0], m.Pc[0])
	b.AddLinkage(m.PcNext[1], m.Pc[1])

	// link value pc+4, the rd result of jal and jalr
	m.link = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	lc := b.AddBooleanVariable()
	ld := b.AddBooleanVariable()
	b.AddConstraint(vc(m.Pc[0]).AddTerm(cs.UintTerm[F](4)).
		SubTerm(cs.VariableTerm[F](m.link[0])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, lc.Variable())))
	b.AddConstraint(vc(m.Pc[1]).AddTerm(cs.BooleanTerm[F](lc)).
		SubTerm(cs.VariableTerm[F](m.link[1])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, ld.Variable())))
	m.bindUints([]cs.Variable{m.link[0], lc.Variable(), m.link[1], ld.Variable()},
		func(in, out []uint64) {
			s := in[0] + 4
			out[0] = s & 0xffff
			out[1] = s >> 16
			hi := in[1] + out[1]
			out[2] = hi & 0xffff
			out[3] = hi >> 16
		}, m.Pc[0], m.Pc[1])

	// auipc result pc+imm, masked so non-auipc rows carry zeros
	m.auipcRes = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	aLo := b.Masked(d.fam[famAuipc], vc(m.Pc[0]).AddTerm(cs.VariableTerm[F](d.imm[0])))
	aHi := b.Masked(d.fam[famAuipc], vc(m.Pc[1]).AddTerm(cs.VariableTerm[F](d.imm[1])))
	ac := b.AddBooleanVariable()
	ad := b.AddBooleanVariable()
	b.AddConstraint(vc(aLo).
		SubTerm(cs.VariableTerm[F](m.auipcRes[0])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, ac.Variable())))
	b.AddConstraint(vc(aHi).AddTerm(cs.BooleanTerm[F](ac)).
		SubTerm(cs.VariableTerm[F](m.auipcRes[1])).
		SubTerm(cs.ScaledVariableTerm(twoPow16, ad.Variable())))
	m.bindUints([]cs.Variable{m.auipcRes[0], ac.Variable(), m.auipcRes[1], ad.Variable()},
		func(in, out []uint64) {
			s := in[0]
			out[0] = s & 0xffff
			out[1] = s >> 16
			hi := in[1] + out[1]
			out[2] = hi & 0xffff
			out[3] = hi >> 16
		}, aLo, aHi)
}
