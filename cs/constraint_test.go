package cs

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/field"
)

// rawEval evaluates a possibly unnormalized constraint term by term, without
// going through SplitMaxQuadratic. The property tests compare it against
// Evaluate to catch sort/combine bugs in Normalize.
func rawEval[F field.Element[F]](c Constraint[F], value func(Variable) F) F {
	res := field.Zero[F]()
	for _, t := range c.terms {
		m := t.Coeff()
		for _, v := range t.Variables() {
			m = m.Mul(value(v))
		}
		res = res.Add(m)
	}
	return res
}

// deterministic assignment used by the algebra tests
func testValue(v Variable) fr { return u64[fr](uint64(v)*7919 + 13) }

// genConstraint generates raw (unnormalized) constraints of degree at most 2
// over a small variable set.
func genConstraint() gopter.Gen {
	return func(genParams *gopter.GenParameters) *gopter.GenResult {
		c := EmptyConstraint[fr]()
		n := int(genParams.NextUint64()%5) + 1
		for i := 0; i < n; i++ {
			coeff := u64[fr](genParams.NextUint64() % (1 << 30))
			switch genParams.NextUint64() % 3 {
			case 0:
				c = c.AddTerm(ConstantTerm(coeff))
			case 1:
				c = c.AddTerm(ScaledVariableTerm(coeff, Variable(genParams.NextUint64()%8)))
			default:
				t := ScaledVariableTerm(coeff, Variable(genParams.NextUint64()%8)).
					Mul(VariableTerm[fr](Variable(genParams.NextUint64() % 8)))
				c = c.AddTerm(t)
			}
		}
		return gopter.NewGenResult(c, gopter.NoShrinker)
	}
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("normalize is idempotent", prop.ForAll(
		func(c Constraint[fr]) bool {
			n := c.Normalize()
			return n.Normalize().String() == n.String()
		},
		genConstraint(),
	))

	properties.Property("normalize preserves evaluation", prop.ForAll(
		func(c Constraint[fr]) bool {
			return rawEval(c, testValue).Equal(c.Normalize().Evaluate(testValue))
		},
		genConstraint(),
	))

	properties.Property("normalized form has no duplicate monomials and no zero terms", prop.ForAll(
		func(c Constraint[fr]) bool {
			n := c.Normalize()
			for i, t := range n.terms {
				if t.IsZero() && t.Degree() > 0 {
					return false
				}
				for j := i + 1; j < len(n.terms); j++ {
					if t.sameMonomial(n.terms[j]) {
						return false
					}
				}
			}
			return true
		},
		genConstraint(),
	))

	properties.Property("normalized terms are sorted degree-descending", prop.ForAll(
		func(c Constraint[fr]) bool {
			n := c.Normalize()
			for i := 1; i < len(n.terms); i++ {
				if cmpTerms(n.terms[i-1], n.terms[i]) > 0 {
					return false
				}
				if n.terms[i-1].Degree() < n.terms[i].Degree() {
					return false
				}
			}
			return true
		},
		genConstraint(),
	))

	properties.Property("Add evaluates pointwise", prop.ForAll(
		func(a, b Constraint[fr]) bool {
			return a.Add(b).Evaluate(testValue).
				Equal(rawEval(a, testValue).Add(rawEval(b, testValue)))
		},
		genConstraint(), genConstraint(),
	))

	properties.Property("Sub of itself is the zero polynomial", prop.ForAll(
		func(a Constraint[fr]) bool {
			return a.Sub(a).IsEmpty()
		},
		genConstraint(),
	))

	properties.Property("equivalent constraints share a hash code", prop.ForAll(
		func(a, b Constraint[fr]) bool {
			// a + b and b + a are the same polynomial built in different order
			return a.Add(b).HashCode() == b.Add(a).HashCode()
		},
		genConstraint(), genConstraint(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestNormalizeCombinesAndCancels(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[fr](Variable(0))
	y := VariableTerm[fr](Variable(1))

	// x + x -> 2x
	n := x.Add(x).Normalize()
	assert.Equal(1, n.NbTerms())
	assert.Equal(uint64(2), n.terms[0].Coeff().Uint64())

	// x - x -> zero polynomial
	assert.True(x.Sub(x).Normalize().IsEmpty())

	// x·y + y·x -> 2·x·y
	n = x.Mul(y).Add(y.Mul(x)).Normalize()
	assert.Equal(1, n.NbTerms())
	assert.Equal(2, n.Degree())
	assert.Equal(uint64(2), n.terms[0].Coeff().Uint64())

	// constants fold
	n = UintTerm[fr](3).Add(UintTerm[fr](4)).Normalize()
	assert.Equal(uint64(7), n.AsConstant().Uint64())

	// 3 + (-3) -> empty, and empty reads back as the constant 0
	n = UintTerm[fr](3).Add(UintTerm[fr](3).Neg()).Normalize()
	assert.True(n.IsEmpty())
	assert.True(n.AsConstant().IsZero())
}

func TestAddTermSkipsNormalization(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[fr](Variable(0))
	c := EmptyConstraint[fr]().AddTerm(x).AddTerm(x).AddTerm(x)
	assert.Equal(3, c.NbTerms(), "AddTerm must not merge like terms")
	assert.Equal(1, c.Normalize().NbTerms())

	// intermediates above degree 2 are allowed until Normalize
	xx := x.Mul(x)
	quartic := EmptyConstraint[fr]().AddTerm(xx.Mul(xx))
	assert.Equal(4, quartic.Degree())
	assert.Panics(func() { quartic.Normalize() })

	// but they may cancel back under the cap before the check fires
	ok := quartic.SubTerm(xx.Mul(xx)).AddTerm(x).Normalize()
	assert.Equal(1, ok.Degree())
}

func TestConstraintOperatorsArePure(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[fr](Variable(0))
	y := VariableTerm[fr](Variable(1))
	z := VariableTerm[fr](Variable(2))

	base := x.Add(y)
	withZ := base.AddTerm(z)
	withNegZ := base.SubTerm(z)

	assert.Equal(2, base.NbTerms())
	assert.Equal(3, withZ.NbTerms())
	assert.Equal(3, withNegZ.NbTerms())
	// the two derived constraints must not share their last term
	assert.True(withZ.terms[2].Coeff().Add(withNegZ.terms[2].Coeff()).IsZero())
}

func TestConstraintMul(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[fr](Variable(0))
	y := VariableTerm[fr](Variable(1))

	// (x + 2)(y + 3) = xy + 3x + 2y + 6
	a := x.Add(UintTerm[fr](2))
	b := y.Add(UintTerm[fr](3))
	p := a.Mul(b)
	assert.Equal(4, p.NbTerms())
	assert.Equal(2, p.Degree())
	assert.True(p.Evaluate(testValue).
		Equal(rawEval(a, testValue).Mul(rawEval(b, testValue))))

	// quadratic times linear exceeds the cap
	q := x.Mul(y).AsConstraint()
	assert.Panics(func() { q.Mul(a) })
}

func TestSplitMaxQuadratic(t *testing.T) {
	assert := require.New(t)

	x, y, z := Variable(0), Variable(1), Variable(2)
	c := VariableTerm[fr](x).Mul(VariableTerm[fr](y)).
		Add(ScaledVariableTerm(u64[fr](5), z)).
		AddTerm(UintTerm[fr](7))

	quad, lin, constant := c.SplitMaxQuadratic()
	assert.Len(quad, 1)
	assert.Len(lin, 1)
	assert.Equal(x, quad[0].A)
	assert.Equal(y, quad[0].B)
	assert.True(quad[0].Coeff.IsOne())
	assert.Equal(z, lin[0].V)
	assert.Equal(uint64(5), lin[0].Coeff.Uint64())
	assert.Equal(uint64(7), constant.Uint64())
}

func TestExpressVariable(t *testing.T) {
	assert := require.New(t)

	x, y := Variable(0), Variable(1)

	// 2x + 3y + 5 = 0  =>  x = -(3y + 5)/2
	c := ScaledVariableTerm(u64[fr](2), x).
		Add(ScaledVariableTerm(u64[fr](3), y)).
		AddTerm(UintTerm[fr](5))

	expr := c.ExpressVariable(x)
	assert.False(expr.ContainsVar(x))

	// substituting the expression back must annihilate the constraint
	assert.True(c.SubstituteVariable(x, expr).IsEmpty())

	// x in a quadratic term cannot be expressed
	q := VariableTerm[fr](x).Mul(VariableTerm[fr](y)).Add(VariableTerm[fr](x))
	assert.Panics(func() { q.ExpressVariable(x) })
	assert.Panics(func() { c.ExpressVariable(Variable(9)) })
}

func TestSubstituteVariable(t *testing.T) {
	assert := require.New(t)

	x, y, z := Variable(0), Variable(1), Variable(2)
	// c = x·y + 2x + 1, substitute x := z + 4
	c := VariableTerm[fr](x).Mul(VariableTerm[fr](y)).
		Add(ScaledVariableTerm(u64[fr](2), x)).
		AddTerm(UintTerm[fr](1))
	expr := VariableTerm[fr](z).Add(UintTerm[fr](4))

	sub := c.SubstituteVariable(x, expr)
	assert.False(sub.ContainsVar(x))

	// evaluating under any assignment where x = z + 4 must agree
	value := func(v Variable) fr {
		if v == x {
			return testValue(z).Add(u64[fr](4))
		}
		return testValue(v)
	}
	assert.True(sub.Evaluate(value).Equal(c.Evaluate(value)))

	// multiplicity above 1 is rejected
	sq := VariableTerm[fr](x).Mul(VariableTerm[fr](x)).AsConstraint()
	assert.Panics(func() { sq.SubstituteVariable(x, expr) })

	// quadratic expression into a quadratic term overflows the cap
	quadExpr := VariableTerm[fr](z).Mul(VariableTerm[fr](z)).AsConstraint()
	assert.Panics(func() { c.SubstituteVariable(x, quadExpr) })
}

func TestConstraintAccessors(t *testing.T) {
	assert := require.New(t)

	x, y := Variable(0), Variable(1)
	c := VariableTerm[fr](y).Mul(VariableTerm[fr](x)).
		Add(VariableTerm[fr](y)).
		AddTerm(UintTerm[fr](3))

	assert.Equal([]Variable{y, x}, c.Variables(), "first-seen order, deduplicated")
	assert.Equal(2, c.DegreeForVar(x)+c.DegreeForVar(y))
	assert.True(c.ContainsVar(x))
	assert.False(c.ContainsVar(Variable(7)))

	assert.Panics(func() { c.AsConstant() })
	assert.Panics(func() { c.AsTerm() })
	assert.Equal(uint64(3), ConstantConstraint(u64[fr](3)).AsConstant().Uint64())

	v, ok := ConstraintFromVariable[fr](x).AsTerm().AsSingleVariable()
	assert.True(ok)
	assert.Equal(x, v)
}

func TestHashCodeDistinguishes(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[fr](Variable(0))
	a := x.Add(UintTerm[fr](1))
	b := x.Add(UintTerm[fr](2))
	assert.NotEqual(a.HashCode(), b.HashCode())
	assert.Equal(a.HashCode(), x.Add(UintTerm[fr](1)).HashCode())
}

func TestConstraintKoalabear(t *testing.T) {
	assert := require.New(t)

	x := VariableTerm[frKoala](Variable(0))
	n := x.Add(x).Sub(x.AsConstraint()).Normalize()
	assert.Equal(1, n.NbTerms())
	assert.True(n.terms[0].Coeff().IsOne())

	sum := UintTerm[frKoala](3).Add(UintTerm[frKoala](4)).Normalize()
	assert.Equal(uint64(7), sum.AsConstant().Uint64())
}
