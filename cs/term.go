package cs

import (
	"fmt"
	"strings"

	"github.com/consensys/gnark-air/field"
)

// termInnerCapacity bounds the degree of a single monomial. Products beyond
// degree 4 must go through an auxiliary variable first.
const termInnerCapacity = 4

// Term is the monomial coeff·v0·…·v(degree−1), or a lone field constant when
// the degree is 0. inner[:degree] is kept sorted by normalize; a repeated
// variable encodes a power. Unused slots hold the placeholder so that equal
// monomials have a unique representation.
//
// Terms are immutable values: every operation returns a new Term.
type Term[F field.Element[F]] struct {
	coeff  F
	inner  [termInnerCapacity]Variable
	degree uint8
}

// ConstantTerm returns the degree-0 term holding value.
func ConstantTerm[F field.Element[F]](value F) Term[F] {
	t := Term[F]{coeff: value}
	for i := range t.inner {
		t.inner[i] = placeholderVariable
	}
	return t
}

// VariableTerm returns the linear term 1·v.
func VariableTerm[F field.Element[F]](v Variable) Term[F] {
	return ScaledVariableTerm(field.One[F](), v)
}

// ScaledVariableTerm returns the linear term coeff·v.
func ScaledVariableTerm[F field.Element[F]](coeff F, v Variable) Term[F] {
	if v.IsPlaceholder() {
		panic("cs: term over the placeholder variable")
	}
	t := Term[F]{coeff: coeff, degree: 1}
	t.inner[0] = v
	for i := 1; i < termInnerCapacity; i++ {
		t.inner[i] = placeholderVariable
	}
	return t
}

// UintTerm returns the degree-0 term holding the field element for value.
func UintTerm[F field.Element[F]](value uint64) Term[F] {
	return ConstantTerm(field.Uint64[F](value))
}

// IsConstant reports whether t is a degree-0 term.
func (t Term[F]) IsConstant() bool { return t.degree == 0 }

// Coeff returns the coefficient, or the constant value for degree-0 terms.
func (t Term[F]) Coeff() F { return t.coeff }

// Degree returns the number of variable factors in the monomial.
func (t Term[F]) Degree() int { return int(t.degree) }

// Variables returns a view over the monomial's variables, inner[:degree].
func (t Term[F]) Variables() []Variable { return t.inner[:t.degree] }

// IsZero reports whether the coefficient (or constant value) is zero.
func (t Term[F]) IsZero() bool { return t.coeff.IsZero() }

// ContainsVar reports whether the monomial contains v.
func (t Term[F]) ContainsVar(v Variable) bool {
	for i := 0; i < int(t.degree); i++ {
		if t.inner[i] == v {
			return true
		}
	}
	return false
}

// DegreeForVar returns the multiplicity (power) of v in this monomial.
func (t Term[F]) DegreeForVar(v Variable) int {
	d := 0
	for i := 0; i < int(t.degree); i++ {
		if t.inner[i] == v {
			d++
		}
	}
	return d
}

// AsSingleVariable returns (v, true) if t is exactly 1·v.
func (t Term[F]) AsSingleVariable() (Variable, bool) {
	if t.degree != 1 || !t.coeff.IsOne() {
		return placeholderVariable, false
	}
	return t.inner[0], true
}

// Scale returns t with its coefficient multiplied by factor. Scaling by zero
// yields a zero term; scaling by an inverse models division.
func (t Term[F]) Scale(factor F) Term[F] {
	t.coeff = t.coeff.Mul(factor)
	return t
}

// Neg returns -t.
func (t Term[F]) Neg() Term[F] {
	t.coeff = t.coeff.Neg()
	return t
}

// prefactorFor returns the coefficient assuming the monomial contains v.
// Panics otherwise.
func (t Term[F]) prefactorFor(v Variable) F {
	if !t.ContainsVar(v) {
		panic(fmt.Sprintf("cs: term %s does not contain %s", t, v))
	}
	return t.coeff
}

// normalize returns the canonical form of t: a zero coefficient collapses to
// the constant 0, and the variable slice is sorted. Multiplication is
// commutative, x·y and y·x must be represented identically; sorting makes the
// representation unique so that combine and sameMonomial can compare slices.
// Panics if an unused slot does not hold the placeholder.
func (t Term[F]) normalize() Term[F] {
	if t.degree > 0 && t.coeff.IsZero() {
		return ConstantTerm(field.Zero[F]())
	}
	for i := int(t.degree); i < termInnerCapacity; i++ {
		if !t.inner[i].IsPlaceholder() {
			panic(fmt.Sprintf("cs: unused monomial slot %d of %s is not the placeholder", i, t))
		}
	}
	// insertion sort; degree is at most 4
	for i := 1; i < int(t.degree); i++ {
		for j := i; j > 0 && t.inner[j] < t.inner[j-1]; j-- {
			t.inner[j], t.inner[j-1] = t.inner[j-1], t.inner[j]
		}
	}
	return t
}

// sameMonomial reports whether both terms are the same monomial up to a
// scalar multiple: identical degree and variable multiset. Both terms must be
// normalized.
func (t Term[F]) sameMonomial(o Term[F]) bool {
	if t.degree != o.degree {
		return false
	}
	return t.inner == o.inner
}

// combine returns t with o's coefficient added if both are like terms
// (constants, or expressions over the same monomial), and whether it did so.
func (t Term[F]) combine(o Term[F]) (Term[F], bool) {
	if !t.sameMonomial(o) {
		return t, false
	}
	t.coeff = t.coeff.Add(o.coeff)
	return t, true
}

// cmpTerms is the total order used by Constraint.Normalize: higher degree
// first, then the sorted variable tuple, then the canonical coefficient
// value. Both terms must be normalized.
func cmpTerms[F field.Element[F]](a, b Term[F]) int {
	if a.degree != b.degree {
		if a.degree > b.degree {
			return -1
		}
		return 1
	}
	for i := 0; i < int(a.degree); i++ {
		if a.inner[i] != b.inner[i] {
			if a.inner[i] < b.inner[i] {
				return -1
			}
			return 1
		}
	}
	return a.coeff.Cmp(b.coeff)
}

// AsConstraint wraps t into a one-term constraint.
func (t Term[F]) AsConstraint() Constraint[F] {
	return Constraint[F]{terms: []Term[F]{t}}
}

// Add returns the two-term constraint t + o. The result is left
// unnormalized so that higher-degree intermediates can keep accumulating.
func (t Term[F]) Add(o Term[F]) Constraint[F] {
	return Constraint[F]{terms: []Term[F]{t, o}}
}

// Sub returns the two-term constraint t − o, unnormalized.
func (t Term[F]) Sub(o Term[F]) Constraint[F] {
	return Constraint[F]{terms: []Term[F]{t, o.Neg()}}
}

// Mul returns the product monomial. The product of degrees d1 and d2 has
// degree exactly d1+d2; composing beyond degree 4 panics, the caller must
// introduce an auxiliary variable first.
func (t Term[F]) Mul(o Term[F]) Term[F] {
	d1, d2 := int(t.degree), int(o.degree)
	if d1+d2 > termInnerCapacity {
		panic(fmt.Sprintf("cs: degree overflow, %d + %d > %d in %s * %s", d1, d2, termInnerCapacity, t, o))
	}
	res := t
	res.coeff = t.coeff.Mul(o.coeff)
	for i := 0; i < d2; i++ {
		res.inner[d1+i] = o.inner[i]
	}
	res.degree = uint8(d1 + d2)
	return res
}

func (t Term[F]) String() string {
	if t.degree == 0 {
		return t.coeff.String()
	}
	var sb strings.Builder
	if !t.coeff.IsOne() {
		sb.WriteString(t.coeff.String())
		sb.WriteByte('*')
	}
	for i := 0; i < int(t.degree); i++ {
		if i > 0 {
			sb.WriteByte('*')
		}
		sb.WriteString(t.inner[i].String())
	}
	return sb.String()
}
