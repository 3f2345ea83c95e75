package cs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/field"
)

// oneHotPair allocates two exec flags with exactly one of them set,
// mimicking what the instruction decoder guarantees.
func oneHotPair(b *Builder[fr], first bool) (Boolean, Boolean) {
	f0 := b.AddBooleanVariable()
	f1 := b.AddBooleanVariable()
	if first {
		bindConst(b, f0.Variable(), 1)
		bindConst(b, f1.Variable(), 0)
	} else {
		bindConst(b, f0.Variable(), 0)
		bindConst(b, f1.Variable(), 1)
	}
	return f0, f1
}

// The canonical two-opcode row: an addition 3 + 4 on the active path and a
// multiplication 3 · 4 on the inactive one. The add lane must produce 7, the
// mul lane must collapse to all zeros, and every constraint must hold.
func TestOptimizationContextEndToEnd(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flagAdd, flagMul := oneHotPair(b, true)

	x1 := b.AddVariable()
	x2 := b.AddVariable()
	bindConst(b, x1, 3)
	bindConst(b, x2, 4)
	c1 := ConstraintFromVariable[fr](x1)
	c2 := ConstraintFromVariable[fr](x2)

	o := NewOptimizationContext(b)
	sum, carry := o.AppendAddRelation(c1, c2, flagAdd)
	lo, hi := o.AppendMulRelation(c1, c2, flagMul)
	o.EnforceAll()

	a := solveAndCheck(t, b)
	assert.Equal(uint64(7), a.MustGet(sum).Uint64())
	assert.Equal(uint64(0), a.MustGet(carry).Uint64())
	assert.True(a.MustGet(lo).IsZero(), "inactive mul lane must read zero")
	assert.True(a.MustGet(hi).IsZero())

	// a tampered witness writing 12 into the pooled output must be rejected
	a.Set(sum, field.Uint64[fr](12))
	assert.False(constraintsHold(b, a), "add lane must reject a wrong pooled sum")
}

func TestAddRelationCarry(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flag := b.AddBooleanVariable()
	bindConst(b, flag.Variable(), 1)

	x1 := b.AddVariable()
	x2 := b.AddVariable()
	bindConst(b, x1, 0xffff)
	bindConst(b, x2, 0x0001)

	o := NewOptimizationContext(b)
	sum, carry := o.AppendAddRelation(ConstraintFromVariable[fr](x1), ConstraintFromVariable[fr](x2), flag)
	o.EnforceAll()

	a := solveAndCheck(t, b)
	assert.Equal(uint64(0), a.MustGet(sum).Uint64())
	assert.Equal(uint64(1), a.MustGet(carry).Uint64())
}

func TestMulRelationSplit(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flag := b.AddBooleanVariable()
	bindConst(b, flag.Variable(), 1)

	x1 := b.AddVariable()
	x2 := b.AddVariable()
	bindConst(b, x1, 0xff) // first operand stays in byte range
	bindConst(b, x2, 0xffff)

	o := NewOptimizationContext(b)
	lo, hi := o.AppendMulRelation(ConstraintFromVariable[fr](x1), ConstraintFromVariable[fr](x2), flag)
	o.EnforceAll()

	a := solveAndCheck(t, b)
	product := uint64(0xff) * uint64(0xffff)
	assert.Equal(product&0xffff, a.MustGet(lo).Uint64())
	assert.Equal(product>>16, a.MustGet(hi).Uint64())
}

func TestRelationLaneSharing(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flagA, flagB := oneHotPair(b, false)

	x := b.AddVariable()
	y := b.AddVariable()
	bindConst(b, x, 10)
	bindConst(b, y, 20)
	cx := ConstraintFromVariable[fr](x)
	cy := ConstraintFromVariable[fr](y)

	o := NewOptimizationContext(b)

	// distinct flags share the first lane and its pooled outputs
	sumA, carryA := o.AppendAddRelation(cx, cy, flagA)
	sumB, carryB := o.AppendAddRelation(cy, cx, flagB)
	assert.Equal(sumA, sumB)
	assert.Equal(carryA, carryB)

	// a second registration under the same flag opens a new lane
	sumA2, carryA2 := o.AppendAddRelation(cx, cx, flagA)
	assert.NotEqual(sumA, sumA2)
	assert.NotEqual(carryA, carryA2)

	o.EnforceAll()
	a := solveAndCheck(t, b)

	// flagB is active: the shared lane holds y + x = 30
	assert.Equal(uint64(30), a.MustGet(sumA).Uint64())
	// flagA is inactive: the second lane degrades to 0 + 0
	assert.True(a.MustGet(sumA2).IsZero())
}

func TestIsZeroRelation(t *testing.T) {
	cases := []struct {
		name   string
		active bool
		input  uint64
		want   uint64
	}{
		{"active zero", true, 0, 1},
		{"active nonzero", true, 5, 0},
		// inactive rows select the zero input, the pooled output reads 1 and
		// consumers mask it with their own exec flag
		{"inactive", false, 5, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			b := NewBuilder[fr](64)

			flag := b.AddBooleanVariable()
			if tc.active {
				bindConst(b, flag.Variable(), 1)
			} else {
				bindConst(b, flag.Variable(), 0)
			}
			x := b.AddVariable()
			bindConst(b, x, tc.input)

			o := NewOptimizationContext(b)
			out := o.AppendIsZeroRelation(ConstraintFromVariable[fr](x), flag)
			o.EnforceAll()

			a := solveAndCheck(t, b)
			assert.Equal(tc.want, a.MustGet(out.Variable()).Uint64())
		})
	}
}

func TestLookupRelation(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flagXor, flagAnd := oneHotPair(b, true)

	x1 := b.AddVariable()
	x2 := b.AddVariable()
	bindConst(b, x1, 0x0f)
	bindConst(b, x2, 0x33)
	c1 := ConstraintFromVariable[fr](x1)
	c2 := ConstraintFromVariable[fr](x2)

	o := NewOptimizationContext(b)
	out := o.AppendLookupRelation(TableXor, c1, c2, flagXor)
	sameLane := o.AppendLookupRelation(TableAnd, c1, c2, flagAnd)
	assert.Equal(out, sameLane, "both ops compete for one lookup lane")
	o.EnforceAll()

	a := solveAndCheck(t, b)
	assert.Equal(uint64(0x0f^0x33), a.MustGet(out).Uint64())
}

func TestLookupRelationInactive(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flag := b.AddBooleanVariable()
	bindConst(b, flag.Variable(), 0)

	x := b.AddVariable()
	bindConst(b, x, 0xab)

	o := NewOptimizationContext(b)
	out := o.AppendLookupRelation(TableOr, ConstraintFromVariable[fr](x), ConstraintFromVariable[fr](x), flag)
	o.EnforceAll()

	// the query degrades to the zero-entry table and an all-zero tuple,
	// which is exactly the shape padding rows take
	a := solveAndCheck(t, b)
	assert.True(a.MustGet(out).IsZero())
	assert.Len(b.Lookups(), 1)
	value := func(v Variable) fr { return a.MustGet(v) }
	assert.True(b.Lookups()[0].Table.AsConstraint().Evaluate(value).IsZero())
}

func TestLookupRelationRejectsNonByteOpTables(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flag := b.AddBooleanVariable()
	o := NewOptimizationContext(b)
	assert.Panics(func() {
		o.AppendLookupRelation(TableRangeCheck16, EmptyConstraint[fr](), EmptyConstraint[fr](), flag)
	})
}

func TestOptimizationContextLifecycle(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	flag := b.AddBooleanVariable()
	bindConst(b, flag.Variable(), 0)
	x := ConstraintFromVariable[fr](b.AddVariable())

	o := NewOptimizationContext(b)
	o.AppendIsZeroRelation(x, flag)
	o.EnforceAll()

	assert.Panics(func() { o.EnforceAll() }, "EnforceAll runs exactly once")
	assert.Panics(func() { o.AppendIsZeroRelation(x, flag) }, "no registrations after EnforceAll")

	fresh := NewOptimizationContext(b)
	assert.Panics(func() { fresh.AppendAddRelation(x, x, flag.Toggled()) }, "negated exec flags are rejected")
}

func TestRelationClassString(t *testing.T) {
	assert := require.New(t)
	assert.Equal("add", RelationAdd.String())
	assert.Equal("mul", RelationMul.String())
	assert.Equal("is-zero", RelationIsZero.String())
	assert.Equal("lookup", RelationLookup.String())
}
