package delegation

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// BigInt ABI page layout: two 256-bit little-endian operands and the result,
// each eight words. x11 carries the control word, bit 0 selecting subtract.
const (
	bigintOffA   = 0
	bigintOffB   = 32
	bigintOffOut = 64

	bigintWords = 8
)

// CompileBigIntOps builds and compiles the 256-bit add/subtract processor.
// One delegated row computes out = a ± b mod 2^256 over sixteen chained
// adder lanes; subtraction is addition of the complemented operand with a
// carry-in of one, so the control bit doubles as the initial carry.
func CompileBigIntOps[F field.Element[F]](in *State) (*Circuit[F], error) {
	b := cs.NewBuilder[F](1 << 10)
	g := &gadgets[F]{b: b, in: in}
	exec := g.execBit()

	base := g.readPointer(abiPointerReg, cs.TimestampRs1, exec)
	control := g.readPointer(abiControlReg, cs.TimestampRs2, exec)

	var (
		reads    [2 * bigintWords]cs.IndirectAccess[F]
		writes   [bigintWords]cs.IndirectAccess[F]
		offsets  []uint32
		accesses []cs.ShuffleRamAccess[F]
	)
	for w := 0; w < bigintWords; w++ {
		reads[w] = b.AddIndirectAccess(base.ReadValue, bigintOffA+uint32(4*w), cs.TimestampDelegation, false, exec)
	}
	for w := 0; w < bigintWords; w++ {
		reads[bigintWords+w] = b.AddIndirectAccess(base.ReadValue, bigintOffB+uint32(4*w), cs.TimestampDelegation, false, exec)
	}
	for w := 0; w < bigintWords; w++ {
		writes[w] = b.AddIndirectAccess(base.ReadValue, bigintOffOut+uint32(4*w), cs.TimestampDelegation, true, exec)
	}
	for _, a := range reads {
		offsets = append(offsets, a.Offset)
		accesses = append(accesses, a.Access)
	}
	for _, a := range writes {
		offsets = append(offsets, a.Offset)
		accesses = append(accesses, a.Access)
	}
	g.bindPageReads(base.ReadValue, exec, offsets, accesses)

	// control bit: parity of the x11 low limb; the limb reads zero on
	// padding rows, so the bit inherits the exec masking
	isSubV := b.AddBooleanVariable()
	rest := b.AddVariableWithRangeCheck(16)
	b.AddConstraint(cs.ConstraintFromVariable[F](control.ReadValue[0]).
		SubTerm(cs.VariableTerm[F](isSubV.Variable())).
		SubTerm(cs.ScaledVariableTerm(field.Uint64[F](2), rest)))
	g.bindUints([]cs.Variable{isSubV.Variable(), rest}, func(in, out []uint64) {
		out[0] = in[0] & 1
		out[1] = in[0] >> 1
	}, control.ReadValue[0])

	vc := func(v cs.Variable) cs.Constraint[F] { return cs.ConstraintFromVariable[F](v) }
	complement := field.Uint64[F](0xffff)

	// b or its limb-wise complement, per the control bit
	var operand [2 * bigintWords]cs.Variable
	for l := 0; l < 2*bigintWords; l++ {
		limb := reads[bigintWords+l/2].Access.ReadValue[l%2]
		operand[l] = b.Choose(isSubV,
			cs.ConstantConstraint(complement).SubTerm(cs.VariableTerm[F](limb)),
			vc(limb))
	}

	o := cs.NewOptimizationContext(b)
	var sums [2 * bigintWords]cs.Variable
	carryIn := cs.VariableTerm[F](isSubV.Variable())
	for l := 0; l < 2*bigintWords; l++ {
		a := reads[l/2].Access.ReadValue[l%2]
		sum, carry := o.AppendAddRelation(
			cs.ConstraintFromVariable[F](a).AddTerm(carryIn),
			vc(operand[l]), exec)
		sums[l] = sum
		carryIn = cs.VariableTerm[F](carry)
	}
	o.EnforceAll()

	// the final carry is dropped: arithmetic is mod 2^256 both ways
	for w := 0; w < bigintWords; w++ {
		g.assignAs(writes[w].Access.WriteValue[0], sums[2*w])
		g.assignAs(writes[w].Access.WriteValue[1], sums[2*w+1])
	}

	desc, err := describe(b, TypeBigIntOps)
	if err != nil {
		return nil, err
	}
	return &Circuit[F]{Description: desc, In: in, b: b, exec: exec}, nil
}
