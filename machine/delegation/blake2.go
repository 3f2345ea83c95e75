package delegation

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// Blake2 ABI page layout, offsets from the pointer in x10. The state words
// are read and written in place, the message words are read-only.
const (
	blakeOffA  = 0
	blakeOffB  = 4
	blakeOffC  = 8
	blakeOffD  = 12
	blakeOffM0 = 16
	blakeOffM1 = 20
)

// CompileBlake2Round builds and compiles the blake2s mixing processor. One
// delegated row evaluates the G function
//
//	a = a + b + m0        d = (d ^ a) >>> 16    c = c + d    b = (b ^ c) >>> 12
//	a = a + b + m1        d = (d ^ a) >>> 8     c = c + d    b = (b ^ c) >>> 7
//
// over the state quarter at the ABI page. Additions ride dedicated adder
// lanes, xors ride byte lookup lanes, and the rotations are wiring: >>>16
// swaps limbs, >>>8 relabels bytes, >>>12 relabels nibbles and >>>7 is a
// byte relabel composed with a doubling that folds the dropped top bit back
// into the low limb.
func CompileBlake2Round[F field.Element[F]](in *State) (*Circuit[F], error) {
	b := cs.NewBuilder[F](1 << 10)
	g := &gadgets[F]{b: b, in: in}
	exec := g.execBit()

	base := g.readPointer(abiPointerReg, cs.TimestampRs1, exec)

	accA := b.AddIndirectAccess(base.ReadValue, blakeOffA, cs.TimestampDelegation, true, exec)
	accB := b.AddIndirectAccess(base.ReadValue, blakeOffB, cs.TimestampDelegation, true, exec)
	accC := b.AddIndirectAccess(base.ReadValue, blakeOffC, cs.TimestampDelegation, true, exec)
	accD := b.AddIndirectAccess(base.ReadValue, blakeOffD, cs.TimestampDelegation, true, exec)
	accM0 := b.AddIndirectAccess(base.ReadValue, blakeOffM0, cs.TimestampDelegation, false, exec)
	accM1 := b.AddIndirectAccess(base.ReadValue, blakeOffM1, cs.TimestampDelegation, false, exec)
	g.bindPageReads(base.ReadValue, exec,
		[]uint32{blakeOffA, blakeOffB, blakeOffC, blakeOffD, blakeOffM0, blakeOffM1},
		[]cs.ShuffleRamAccess[F]{accA.Access, accB.Access, accC.Access, accD.Access, accM0.Access, accM1.Access})

	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }
	word := func(w [2]cs.Variable) (lo, hi cs.Constraint[F]) { return vc(w[0]), vc(w[1]) }
	twoPow8 := field.TwoPowN[F](8)

	aLo, aHi := word(accA.Access.ReadValue)
	bLo, bHi := word(accB.Access.ReadValue)
	cLo, cHi := word(accC.Access.ReadValue)
	m0Lo, m0Hi := word(accM0.Access.ReadValue)
	m1Lo, m1Hi := word(accM1.Access.ReadValue)

	// a += b + m0
	t := g.add32(aLo, aHi, bLo, bHi, exec)
	a1 := g.add32(vc(t[0]), vc(t[1]), m0Lo, m0Hi, exec)

	// d = (d ^ a) >>> 16
	dBytes := g.bytesOf(accD.Access.ReadValue)
	a1Bytes := g.bytesOf(a1)
	dx := g.xor32(byteConstraints[F](dBytes), byteConstraints[F](a1Bytes), exec)
	d1Bytes := [4]cs.Variable{dx[2], dx[3], dx[0], dx[1]}
	d1Lo := vc(d1Bytes[0]).AddTerm(cs.ScaledVariableTerm(twoPow8, d1Bytes[1]))
	d1Hi := vc(d1Bytes[2]).AddTerm(cs.ScaledVariableTerm(twoPow8, d1Bytes[3]))

	// c += d
	c1 := g.add32(cLo, cHi, d1Lo, d1Hi, exec)

	// b = (b ^ c) >>> 12
	bBytes := g.bytesOf(accB.Access.ReadValue)
	c1Bytes := g.bytesOf(c1)
	bx := g.xor32(byteConstraints[F](bBytes), byteConstraints[F](c1Bytes), exec)
	bxLow, bxHigh := g.nibblesOf(bx)
	sixteen := field.TwoPowN[F](4)
	var b1Bytes [4]cs.Constraint[F]
	for k := 0; k < 4; k++ {
		b1Bytes[k] = vc(bxHigh[(k+1)%4]).AddTerm(cs.ScaledVariableTerm(sixteen, bxLow[(k+2)%4]))
	}
	b1Lo := b1Bytes[0].Add(b1Bytes[1].Scale(twoPow8))
	b1Hi := b1Bytes[2].Add(b1Bytes[3].Scale(twoPow8))

	// a += b + m1
	u := g.add32(vc(a1[0]), vc(a1[1]), b1Lo, b1Hi, exec)
	a2 := g.add32(vc(u[0]), vc(u[1]), m1Lo, m1Hi, exec)

	// d = (d ^ a) >>> 8; the first operand's bytes are the >>>16 relabel of
	// the earlier xor output, no fresh decomposition needed
	a2Bytes := g.bytesOf(a2)
	dxx := g.xor32(byteConstraints[F](d1Bytes), byteConstraints[F](a2Bytes), exec)
	d2Lo := vc(dxx[1]).AddTerm(cs.ScaledVariableTerm(twoPow8, dxx[2]))
	d2Hi := vc(dxx[3]).AddTerm(cs.ScaledVariableTerm(twoPow8, dxx[0]))

	// c += d
	c2 := g.add32(vc(c1[0]), vc(c1[1]), d2Lo, d2Hi, exec)

	// b = (b ^ c) >>> 7
	c2Bytes := g.bytesOf(c2)
	bx2 := g.xor32(b1Bytes, byteConstraints[F](c2Bytes), exec)
	b2Lo, b2Hi := g.rotateRight7(bx2)

	g.assignAs(accA.Access.WriteValue[0], a2[0])
	g.assignAs(accA.Access.WriteValue[1], a2[1])
	g.assignAs(accB.Access.WriteValue[0], b.Masked(exec, b2Lo))
	g.assignAs(accB.Access.WriteValue[1], b.Masked(exec, b2Hi))
	g.assignAs(accC.Access.WriteValue[0], c2[0])
	g.assignAs(accC.Access.WriteValue[1], c2[1])
	g.assignAs(accD.Access.WriteValue[0], b.Masked(exec, d2Lo))
	g.assignAs(accD.Access.WriteValue[1], b.Masked(exec, d2Hi))

	desc, err := describe(b, TypeBlake2Round)
	if err != nil {
		return nil, err
	}
	return &Circuit[F]{Description: desc, In: in, b: b, exec: exec}, nil
}

// rotateRight7 maps the byte-decomposed word x to x >>> 7, as the byte
// rotation x >>> 8 followed by a doubling whose dropped bit 31 folds back
// into bit 0.
func (g *gadgets[F]) rotateRight7(x [4]cs.Variable) (lo, hi cs.Constraint[F]) {
	tLo := g.b.AddVariableWithRangeCheck(16)
	tHi := g.b.AddVariableWithRangeCheck(16)
	carry := g.b.AddBooleanVariable()
	msb := g.b.AddBooleanVariable()

	two := field.Uint64[F](2)
	twoPow9 := field.TwoPowN[F](9)
	twoPow16 := field.TwoPowN[F](16)

	// 2·(x1 + 2^8·x2) = tLo + 2^16·carry
	g.b.AddConstraint(cs.NewConstraint(
		cs.ScaledVariableTerm(two, x[1]),
		cs.ScaledVariableTerm(twoPow9, x[2]),
	).SubTerm(cs.VariableTerm[F](tLo)).
		SubTerm(cs.ScaledVariableTerm(twoPow16, carry.Variable())))
	// 2·(x3 + 2^8·x0) + carry = tHi + 2^16·msb
	g.b.AddConstraint(cs.NewConstraint(
		cs.ScaledVariableTerm(two, x[3]),
		cs.ScaledVariableTerm(twoPow9, x[0]),
		cs.VariableTerm[F](carry.Variable()),
	).SubTerm(cs.VariableTerm[F](tHi)).
		SubTerm(cs.ScaledVariableTerm(twoPow16, msb.Variable())))

	g.bindUints([]cs.Variable{tLo, carry.Variable(), tHi, msb.Variable()}, func(in, out []uint64) {
		low := 2 * (in[1] + in[2]<<8)
		out[0] = low & 0xffff
		out[1] = low >> 16
		high := 2*(in[3]+in[0]<<8) + out[1]
		out[2] = high & 0xffff
		out[3] = high >> 16
	}, x[0], x[1], x[2], x[3])

	// tLo is even, so adding the wrapped bit cannot overflow the limb
	lo = cs.ConstraintFromVariable[F](tLo).AddTerm(cs.VariableTerm[F](msb.Variable()))
	hi = cs.ConstraintFromVariable[F](tHi)
	return lo, hi
}

func byteConstraints[F field.Element[F]](bs [4]cs.Variable) [4]cs.Constraint[F] {
	var out [4]cs.Constraint[F]
	for k := range out {
		out[k] = cs.ConstraintFromVariable[F](bs[k])
	}
	return out
}
