package machine

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// readRegisters records the rs1/rs2 touches. Addresses are masked by the
// per-family usage flags so rows that do not read a register (and padding
// rows) keep zero address columns, and the value closures consult the input
// register file.
func (m *Machine[F]) readRegisters() {
	m.Rs1Read = m.readRegister(m.dec.usesRs1, m.rs1Index(), cs.TimestampRs1)
	m.rs1Val = m.Rs1Read.ReadValue
	m.Rs2Read = m.readRegister(m.dec.usesRs2, m.rs2Index(), cs.TimestampRs2)
	m.rs2Val = m.Rs2Read.ReadValue
}

func (m *Machine[F]) readRegister(uses cs.Boolean, index cs.Constraint[F], localTs int) cs.ShuffleRamAccess[F] {
	b := m.b
	addr := b.Masked(uses, index)
	access := cs.ShuffleRamAccess[F]{
		Address:        [2]cs.Term[F]{cs.VariableTerm[F](addr), cs.UintTerm[F](0)},
		IsRegister:     true,
		LocalTimestamp: localTs,
		ReadValue:      [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)},
		Exec:           uses,
	}
	b.AddShuffleRamAccess(access)
	in := m.in
	m.bindUints(access.ReadValue[:], func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		v := in.Regs[vals[1]&0x1f]
		out[0] = uint64(v & 0xffff)
		out[1] = uint64(v >> 16)
	}, uses.Variable(), addr)
	return access
}

// selectOperands picks the second ALU operand (immediate for the op-imm
// family, rs2 otherwise) and splits both operand words into range-checked
// bytes for the bitwise and multiply lanes.
func (m *Machine[F]) selectOperands() {
	d := &m.dec
	m.op2 = [2]cs.Variable{
		m.b.Choose(d.fam[famOpImm], cs.ConstraintFromVariable[F](d.imm[0]), cs.ConstraintFromVariable[F](m.rs2Val[0])),
		m.b.Choose(d.fam[famOpImm], cs.ConstraintFromVariable[F](d.imm[1]), cs.ConstraintFromVariable[F](m.rs2Val[1])),
	}
	m.rs1Bytes = m.bytesOf(m.rs1Val)
	m.op2Bytes = m.bytesOf(m.op2)
}

// bytesOf splits a bound limb pair into four range-checked bytes.
func (m *Machine[F]) bytesOf(limbs [2]cs.Variable) [4]cs.Variable {
	var bs [4]cs.Variable
	for i := range bs {
		bs[i] = m.b.AddVariableWithRangeCheck(8)
	}
	twoPow8 := field.TwoPowN[F](8)
	for half := 0; half < 2; half++ {
		lo, hi := bs[2*half], bs[2*half+1]
		m.b.AddConstraint(cs.ConstraintFromVariable[F](limbs[half]).
			SubTerm(cs.VariableTerm[F](lo)).
			SubTerm(cs.ScaledVariableTerm(twoPow8, hi)))
		m.bindUints([]cs.Variable{lo, hi}, func(in, out []uint64) {
			out[0] = in[0] & 0xff
			out[1] = in[0] >> 8
		}, limbs[half])
	}
	return bs
}

// registerAluRelations fills the add-relation lanes. Lanes 0/1 carry the
// 32-bit carry-chained adder shared by add/sub, the unsigned branch compare,
// the load/store address and the divide recomposition check; lanes 2/3 carry
// the remainder-below-divisor compare of the divide path.
func (m *Machine[F]) registerAluRelations(o *cs.OptimizationContext[F]) {
	d := &m.dec
	ones := field.Uint64[F](0xffff)
	one := cs.ConstantTerm(field.One[F]())

	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }
	complement := func(v cs.Variable) cs.Constraint[F] {
		return cs.ConstantConstraint(ones).SubTerm(cs.VariableTerm[F](v))
	}

	// low halves
	sumLo, carryLo := o.AppendAddRelation(vc(m.rs1Val[0]), vc(m.op2[0]), d.isAddAny)
	o.AppendAddRelation(vc(m.rs1Val[0]).AddTerm(one), complement(m.op2[0]), d.isSubR)
	o.AppendAddRelation(vc(m.rs1Val[0]).AddTerm(one), complement(m.rs2Val[0]), d.fam[famBranch])
	o.AppendAddRelation(vc(m.rs1Val[0]), vc(d.imm[0]), d.memAny)
	o.AppendAddRelation(vc(m.res[0]), vc(m.r[0]), d.divPath)

	// high halves, chained through the pooled low carry
	carryIn := cs.VariableTerm[F](carryLo)
	sumHi, carryHi := o.AppendAddRelation(vc(m.rs1Val[1]).AddTerm(carryIn), vc(m.op2[1]), d.isAddAny)
	o.AppendAddRelation(vc(m.rs1Val[1]).AddTerm(carryIn), complement(m.op2[1]), d.isSubR)
	o.AppendAddRelation(vc(m.rs1Val[1]).AddTerm(carryIn), complement(m.rs2Val[1]), d.fam[famBranch])
	o.AppendAddRelation(vc(m.rs1Val[1]).AddTerm(carryIn), vc(d.imm[1]), d.memAny)
	o.AppendAddRelation(vc(m.res[1]).AddTerm(carryIn), vc(m.r[1]), d.divPath)

	m.aluOut = [2]cs.Variable{sumLo, sumHi}
	m.aluCarry = [2]cs.Variable{carryLo, carryHi}

	// remainder < divisor: r − divisor must borrow, i.e. the carry out of
	// r + ¬divisor + 1 must stay clear
	_, cmpCarryLo := o.AppendAddRelation(vc(m.r[0]).AddTerm(one), complement(m.divisor[0]), d.divPath)
	_, cmpCarryHi := o.AppendAddRelation(
		vc(m.r[1]).AddTerm(cs.VariableTerm[F](cmpCarryLo)), complement(m.divisor[1]), d.divPath)
	m.cmpCarry = cmpCarryHi
}

// registerBitwiseRelations fills the four byte-op lookup lanes: one per
// operand byte, each carrying the xor/or/and candidates. Inactive rows
// degrade to the zero-entry table and zero outputs.
func (m *Machine[F]) registerBitwiseRelations(o *cs.OptimizationContext[F]) {
	d := &m.dec
	for k := 0; k < 4; k++ {
		a := cs.ConstraintFromVariable[F](m.rs1Bytes[k])
		x := cs.ConstraintFromVariable[F](m.op2Bytes[k])
		m.bitOut[k] = o.AppendLookupRelation(cs.TableXor, a, x, d.xorAny)
		o.AppendLookupRelation(cs.TableOr, a, x, d.orAny)
		o.AppendLookupRelation(cs.TableAnd, a, x, d.andAny)
	}
}
