package machine

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// accessMemory records the RAM touch of loads and stores. The effective
// address is the adder lanes' pooled output (rs1 + imm on memory rows),
// masked per record so the inactive record of the pair — and both on
// non-memory rows — keeps zero columns. Word instructions only, so the
// address must be 4-byte aligned.
func (m *Machine[F]) accessMemory() {
	b := m.b
	d := &m.dec
	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }

	b.AssertAligned4(b.Masked(d.memAny, vc(m.aluOut[0])))

	in := m.in
	loadAddr := [2]cs.Variable{b.Masked(d.isLw, vc(m.aluOut[0])), b.Masked(d.isLw, vc(m.aluOut[1]))}
	m.Load = cs.ShuffleRamAccess[F]{
		Address:        [2]cs.Term[F]{cs.VariableTerm[F](loadAddr[0]), cs.VariableTerm[F](loadAddr[1])},
		LocalTimestamp: cs.TimestampRs2,
		ReadValue:      [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)},
		Exec:           d.isLw,
	}
	b.AddShuffleRamAccess(m.Load)
	m.bindUints(m.Load.ReadValue[:], func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		v := in.Mem[uint32(vals[1]+vals[2]<<16)]
		out[0] = uint64(v & 0xffff)
		out[1] = uint64(v >> 16)
	}, d.isLw.Variable(), loadAddr[0], loadAddr[1])

	storeAddr := [2]cs.Variable{b.Masked(d.isSw, vc(m.aluOut[0])), b.Masked(d.isSw, vc(m.aluOut[1]))}
	m.Store = cs.ShuffleRamAccess[F]{
		Address:        [2]cs.Term[F]{cs.VariableTerm[F](storeAddr[0]), cs.VariableTerm[F](storeAddr[1])},
		IsWrite:        true,
		LocalTimestamp: cs.TimestampRd,
		ReadValue:      [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)},
		WriteValue: [2]cs.Variable{
			b.Masked(d.isSw, vc(m.rs2Val[0])),
			b.Masked(d.isSw, vc(m.rs2Val[1])),
		},
		Exec: d.isSw,
	}
	b.AddShuffleRamAccess(m.Store)
	m.bindUints(m.Store.ReadValue[:], func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		v := in.Mem[uint32(vals[1]+vals[2]<<16)]
		out[0] = uint64(v & 0xffff)
		out[1] = uint64(v >> 16)
	}, d.isSw.Variable(), storeAddr[0], storeAddr[1])
}

// writeBack selects the destination register value across every family and
// records the rd write. Writes to x0 are discarded the riscv way: the write
// exec flag carries a rd≠0 factor, and the address and value columns are
// masked by it.
func (m *Machine[F]) writeBack() {
	b := m.b
	d := &m.dec
	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }
	twoPow8 := field.TwoPowN[F](8)

	rdZero := b.IsZero(vc(d.rd))
	m.rdWriteExec = m.andNot(d.writesRd, rdZero)

	flags := []cs.Boolean{
		d.aluAddSub, d.bitwiseAny, d.mulPath, d.divPath,
		d.linkWrite, d.fam[famLui], d.fam[famAuipc], d.isLw, d.isCsr,
	}
	lo := b.ChooseFromOrthogonalVariants(flags, []cs.Constraint[F]{
		vc(m.aluOut[0]),
		vc(m.bitOut[0]).AddTerm(cs.ScaledVariableTerm(twoPow8, m.bitOut[1])),
		vc(m.res[0]),
		vc(m.q[0]),
		vc(m.link[0]),
		vc(d.imm[0]),
		vc(m.auipcRes[0]),
		vc(m.Load.ReadValue[0]),
		cs.EmptyConstraint[F](),
	})
	hi := b.ChooseFromOrthogonalVariants(flags, []cs.Constraint[F]{
		vc(m.aluOut[1]),
		vc(m.bitOut[2]).AddTerm(cs.ScaledVariableTerm(twoPow8, m.bitOut[3])),
		vc(m.res[1]),
		vc(m.q[1]),
		vc(m.link[1]),
		vc(d.imm[1]),
		vc(m.auipcRes[1]),
		vc(m.Load.ReadValue[1]),
		cs.EmptyConstraint[F](),
	})

	addr := b.Masked(m.rdWriteExec, vc(d.rd))
	in := m.in
	m.RdWrite = cs.ShuffleRamAccess[F]{
		Address:        [2]cs.Term[F]{cs.VariableTerm[F](addr), cs.UintTerm[F](0)},
		IsRegister:     true,
		IsWrite:        true,
		LocalTimestamp: cs.TimestampRd,
		ReadValue:      [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)},
		WriteValue: [2]cs.Variable{
			b.Masked(m.rdWriteExec, vc(lo)),
			b.Masked(m.rdWriteExec, vc(hi)),
		},
		Exec: m.rdWriteExec,
	}
	b.AddShuffleRamAccess(m.RdWrite)
	m.bindUints(m.RdWrite.ReadValue[:], func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		v := in.Regs[vals[1]&0x1f]
		out[0] = uint64(v & 0xffff)
		out[1] = uint64(v >> 16)
	}, m.rdWriteExec.Variable(), addr)
}

// requestDelegation emits the cycle's co-processor descriptor on csrrw rows:
// the csr index (the I-immediate) names the delegation type and rs1's high
// limb carries the ABI page. rd reads back zero by convention.
func (m *Machine[F]) requestDelegation() {
	d := &m.dec
	dType := m.b.Masked(d.isCsr, cs.ConstraintFromVariable[F](d.imm[0]))
	dHigh := m.b.Masked(d.isCsr, cs.ConstraintFromVariable[F](m.rs1Val[1]))
	m.Delegation = cs.DelegationRequest[F]{
		Exec:          d.isCsr,
		Type:          cs.VariableTerm[F](dType),
		MemOffsetHigh: cs.VariableTerm[F](dHigh),
	}
	m.b.AddDelegationRequest(m.Delegation)
}
