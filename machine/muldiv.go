package machine

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// prepareShift derives the shift amount and looks up 2^shamt. Register
// shifts take the low five bits of rs2, immediate shifts the rs2 field of
// the instruction word; shifts then ride the multiply (sll) or divide (srl)
// path against the power of two. On non-shift rows the lookup degrades to
// the zero-entry table.
func (m *Machine[F]) prepareShift() {
	b := m.b
	d := &m.dec

	// rs2 low limb = 32·rest + shamtRaw
	shamtRaw := b.AddVariable()
	m.narrowTo(shamtRaw, 5)
	rest := b.AddVariableWithRangeCheck(16)
	b.AddConstraint(cs.ConstraintFromVariable[F](m.rs2Val[0]).
		SubTerm(cs.VariableTerm[F](shamtRaw)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](5), rest)))
	m.bindUints([]cs.Variable{shamtRaw, rest}, func(in, out []uint64) {
		out[0] = in[0] & 0x1f
		out[1] = in[0] >> 5
	}, m.rs2Val[0])

	sel := b.Choose(d.shiftImm, m.rs2Index(), cs.ConstraintFromVariable[F](shamtRaw))
	m.shamt = b.Masked(d.shiftAny, cs.ConstraintFromVariable[F](sel))

	m.pow2Lo = b.AddVariableWithRangeCheck(16)
	m.pow2Hi = b.AddVariableWithRangeCheck(16)
	tid := b.Masked(d.shiftAny, cs.TableConstant[F](TablePow2).AsConstraint())
	b.EnforceLookup(cs.VariableTerm[F](tid), [cs.LookupTupleWidth]cs.Term[F]{
		cs.VariableTerm[F](m.shamt),
		cs.VariableTerm[F](m.pow2Lo),
		cs.VariableTerm[F](m.pow2Hi),
	})
	m.bindUints([]cs.Variable{m.pow2Lo, m.pow2Hi}, func(in, out []uint64) {
		if in[0] == 0 {
			return
		}
		p := uint64(1) << in[1]
		out[0] = p & 0xffff
		out[1] = p >> 16
	}, d.shiftAny.Variable(), m.shamt)
}

// prepareMulDiv selects the multiply and divide operands and binds the
// quotient, remainder and low-product columns. The constraints tying them
// to the pooled partial products land after the optimization context
// resolves, in checkMulDiv.
func (m *Machine[F]) prepareMulDiv() {
	b := m.b
	d := &m.dec
	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }

	for half := 0; half < 2; half++ {
		m.mulOperand[half] = b.ChooseFromOrthogonalVariants(
			[]cs.Boolean{d.isMulR, d.isSllAny},
			[]cs.Constraint[F]{vc(m.rs2Val[half]), vc([2]cs.Variable{m.pow2Lo, m.pow2Hi}[half])})
		m.divisor[half] = b.ChooseFromOrthogonalVariants(
			[]cs.Boolean{d.isDivuR, d.isSrlAny},
			[]cs.Constraint[F]{vc(m.rs2Val[half]), vc([2]cs.Variable{m.pow2Lo, m.pow2Hi}[half])})
	}

	m.q = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	m.r = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	// a zero divisor leaves no remainder below it; the compare lanes then
	// make the row unsatisfiable, so divide-by-zero cannot be proven
	m.bindUints([]cs.Variable{m.q[0], m.q[1], m.r[0], m.r[1]}, func(in, out []uint64) {
		if in[0] == 0 {
			return
		}
		n := in[1] + in[2]<<16
		dv := in[3] + in[4]<<16
		if dv == 0 {
			out[2] = n & 0xffff
			out[3] = n >> 16
			return
		}
		q, r := n/dv, n%dv
		out[0], out[1] = q&0xffff, q>>16
		out[2], out[3] = r&0xffff, r>>16
	}, d.divPath.Variable(), m.rs1Val[0], m.rs1Val[1], m.divisor[0], m.divisor[1])
	m.qBytes = m.bytesOf(m.q)

	m.res = [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)}
	m.resCarry0 = b.AddVariableWithRangeCheck(16)
	m.resCarry1 = b.AddVariableWithRangeCheck(16)
	m.bindUints([]cs.Variable{m.res[0], m.res[1], m.resCarry0, m.resCarry1}, func(in, out []uint64) {
		var bytes [4]uint64
		var oLo, oHi uint64
		switch {
		case in[0] == 1: // multiply path
			copy(bytes[:], in[2:6])
			oLo, oHi = in[10], in[11]
		case in[1] == 1: // divide path
			copy(bytes[:], in[6:10])
			oLo, oHi = in[12], in[13]
		default:
			return
		}
		var p [6][2]uint64
		for k := 0; k < 4; k++ {
			v := bytes[k] * oLo
			p[k] = [2]uint64{v & 0xffff, v >> 16}
		}
		for k := 0; k < 2; k++ {
			v := bytes[k] * oHi
			p[4+k] = [2]uint64{v & 0xffff, v >> 16}
		}
		t0 := p[0][0] + p[1][0]<<8
		out[0] = t0 & 0xffff
		out[2] = t0 >> 16
		h := out[2] + p[0][1] + p[1][1]<<8 + p[2][0] + p[3][0]<<8 + p[4][0] + p[5][0]<<8
		out[1] = h & 0xffff
		out[3] = h >> 16
	},
		d.mulPath.Variable(), d.divPath.Variable(),
		m.rs1Bytes[0], m.rs1Bytes[1], m.rs1Bytes[2], m.rs1Bytes[3],
		m.qBytes[0], m.qBytes[1], m.qBytes[2], m.qBytes[3],
		m.mulOperand[0], m.mulOperand[1],
		m.divisor[0], m.divisor[1])
}

// registerMulRelations fills the partial-product lanes: the active operand
// bytes (rs1 for multiply and sll, the quotient for divide and srl) against
// the selected 16-bit operand limbs. Lanes 6 and 7 exist only on the divide
// path, where the full q·divisor product must be shown to fit 32 bits.
func (m *Machine[F]) registerMulRelations(o *cs.OptimizationContext[F]) {
	d := &m.dec
	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }

	for k := 0; k < 4; k++ {
		lo, hi := o.AppendMulRelation(vc(m.rs1Bytes[k]), vc(m.mulOperand[0]), d.mulPath)
		o.AppendMulRelation(vc(m.qBytes[k]), vc(m.divisor[0]), d.divPath)
		m.partials[k] = [2]cs.Variable{lo, hi}
	}
	for k := 0; k < 2; k++ {
		lo, hi := o.AppendMulRelation(vc(m.rs1Bytes[k]), vc(m.mulOperand[1]), d.mulPath)
		o.AppendMulRelation(vc(m.qBytes[k]), vc(m.divisor[1]), d.divPath)
		m.partials[4+k] = [2]cs.Variable{lo, hi}
	}
	for k := 2; k < 4; k++ {
		lo, hi := o.AppendMulRelation(vc(m.qBytes[k]), vc(m.divisor[1]), d.divPath)
		m.partials[4+k] = [2]cs.Variable{lo, hi}
	}
}

// checkMulDiv ties the bound product columns to the pooled partials and
// closes the divide path: quotient·divisor + remainder recomposes the
// dividend with no 32-bit overflow, and the remainder compares below the
// divisor.
func (m *Machine[F]) checkMulDiv() {
	b := m.b
	d := &m.dec
	twoPow8 := field.TwoPowN[F](8)
	twoPow16 := field.TwoPowN[F](16)
	p := m.partials

	// res.lo + 2¹⁶·c0 = p0.lo + 2⁸·p1.lo
	b.AddConstraint(cs.ConstraintFromVariable[F](m.res[0]).
		AddTerm(cs.ScaledVariableTerm(twoPow16, m.resCarry0)).
		SubTerm(cs.VariableTerm[F](p[0][0])).
		SubTerm(cs.ScaledVariableTerm(twoPow8, p[1][0])))
	// res.hi + 2¹⁶·c1 = c0 + p0.hi + 2⁸·p1.hi + p2.lo + 2⁸·p3.lo + p4.lo + 2⁸·p5.lo
	b.AddConstraint(cs.ConstraintFromVariable[F](m.res[1]).
		AddTerm(cs.ScaledVariableTerm(twoPow16, m.resCarry1)).
		SubTerm(cs.VariableTerm[F](m.resCarry0)).
		SubTerm(cs.VariableTerm[F](p[0][1])).
		SubTerm(cs.ScaledVariableTerm(twoPow8, p[1][1])).
		SubTerm(cs.VariableTerm[F](p[2][0])).
		SubTerm(cs.ScaledVariableTerm(twoPow8, p[3][0])).
		SubTerm(cs.VariableTerm[F](p[4][0])).
		SubTerm(cs.ScaledVariableTerm(twoPow8, p[5][0])))

	divC := cs.BooleanConstraint[F](d.divPath)

	// the adder lanes recompose res + r; on the divide path they must hit
	// the dividend exactly, with no carry past bit 31
	b.AddConstraint(divC.Mul(cs.ConstraintFromVariable[F](m.aluOut[0]).
		SubTerm(cs.VariableTerm[F](m.rs1Val[0]))))
	b.AddConstraint(divC.Mul(cs.ConstraintFromVariable[F](m.aluOut[1]).
		SubTerm(cs.VariableTerm[F](m.rs1Val[1]))))
	b.AddConstraint(divC.MulTerm(cs.VariableTerm[F](m.aluCarry[1])))

	// every partial-product contribution above bit 31 must vanish; the sum
	// of the raw columns stays far below the modulus, so a zero sum zeroes
	// each one
	overflow := cs.NewConstraint(
		cs.VariableTerm[F](m.resCarry1),
		cs.VariableTerm[F](p[2][1]),
		cs.VariableTerm[F](p[3][1]),
		cs.VariableTerm[F](p[4][1]),
		cs.VariableTerm[F](p[5][1]),
		cs.VariableTerm[F](p[6][0]),
		cs.VariableTerm[F](p[6][1]),
		cs.VariableTerm[F](p[7][0]),
		cs.VariableTerm[F](p[7][1]),
	)
	b.AddConstraint(divC.Mul(overflow))

	// remainder < divisor
	b.AddConstraint(divC.MulTerm(cs.VariableTerm[F](m.cmpCarry)))
}
