package cs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaceholder(t *testing.T) {
	assert := require.New(t)

	assert.True(Placeholder().IsPlaceholder())
	assert.False(Variable(0).IsPlaceholder())
	assert.Equal("v_", Placeholder().String())
	assert.Equal("v7", Variable(7).String())
}

func TestNum(t *testing.T) {
	assert := require.New(t)

	n := NewNum[fr](Variable(3))
	assert.False(n.IsConstant())
	assert.Equal(Variable(3), n.Variable())
	assert.Panics(func() { n.Constant() })

	c := ConstNum(u64[fr](9))
	assert.True(c.IsConstant())
	assert.Equal(uint64(9), c.Constant().Uint64())
	assert.Panics(func() { c.Variable() })

	assert.Equal(1, n.Term().Degree())
	assert.Equal(0, c.Term().Degree())
	assert.Panics(func() { NewNum[fr](Placeholder()) })
}

func TestBooleanViews(t *testing.T) {
	assert := require.New(t)

	is := BoolIs(Variable(2))
	not := is.Toggled()
	assert.False(is.IsNegated())
	assert.True(not.IsNegated())
	assert.Equal(is, not.Toggled())
	assert.Equal(Variable(2), not.Variable())
	assert.Equal("!v2", not.String())

	tt := ConstantBool(true)
	assert.True(tt.IsConstant())
	assert.True(tt.ConstantValue())
	assert.False(tt.Toggled().ConstantValue())
	assert.Panics(func() { tt.Variable() })
	assert.Panics(func() { is.ConstantValue() })

	assert.Panics(func() { BoolIs(Placeholder()) })
}

func TestBooleanTermRejectsNegatedView(t *testing.T) {
	assert := require.New(t)

	not := BoolNot(Variable(0))
	assert.Panics(func() { BooleanTerm[fr](not) })

	// the positive view and constants convert fine
	assert.Equal(1, BooleanTerm[fr](BoolIs(Variable(0))).Degree())
	assert.True(BooleanTerm[fr](ConstantBool(true)).Coeff().IsOne())
	assert.True(BooleanTerm[fr](ConstantBool(false)).IsZero())
}

func TestBooleanConstraintForms(t *testing.T) {
	assert := require.New(t)

	v := Variable(0)
	value := func(Variable) fr { return u64[fr](1) } // v = 1

	assert.Equal(uint64(1), BooleanConstraint[fr](BoolIs(v)).Evaluate(value).Uint64())
	assert.Equal(uint64(0), BooleanConstraint[fr](BoolNot(v)).Evaluate(value).Uint64())
	assert.Equal(uint64(1), BooleanConstraint[fr](ConstantBool(true)).AsConstant().Uint64())
	assert.True(BooleanConstraint[fr](ConstantBool(false)).Normalize().IsEmpty())
}
