package cs

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/consensys/gnark-air/field"
)

// maxConstraintDegree is the degree every constraint accepted into the final
// circuit must satisfy. It matches the quotient degree bound of the proving
// pipeline; exceeding it is a construction-time failure, never deferred.
const maxConstraintDegree = 2

// Constraint is a polynomial required to vanish, represented as a sparse sum
// of monomial [Term]s. Arithmetic behaves like ordinary polynomial algebra:
// composition operators return new constraints and never mutate shared state.
//
// [Constraint.Add], [Constraint.Sub] and the multiplication operators
// normalize their result; the per-term operators [Constraint.AddTerm] and
// [Constraint.SubTerm] do not, which is what allows degree-3/4 intermediates
// to accumulate before they are cancelled or substituted away.
type Constraint[F field.Element[F]] struct {
	terms []Term[F]
}

// QuadTerm is one quadratic monomial of a split constraint, Coeff·A·B.
type QuadTerm[F field.Element[F]] struct {
	Coeff F
	A, B  Variable
}

// LinTerm is one linear monomial of a split constraint, Coeff·V.
type LinTerm[F field.Element[F]] struct {
	Coeff F
	V     Variable
}

// EmptyConstraint returns the zero polynomial.
func EmptyConstraint[F field.Element[F]]() Constraint[F] {
	return Constraint[F]{}
}

// NewConstraint returns the sum of the given terms, unnormalized.
func NewConstraint[F field.Element[F]](terms ...Term[F]) Constraint[F] {
	c := Constraint[F]{terms: make([]Term[F], len(terms))}
	copy(c.terms, terms)
	return c
}

// ConstantConstraint returns the one-term constraint holding value.
func ConstantConstraint[F field.Element[F]](value F) Constraint[F] {
	return ConstantTerm(value).AsConstraint()
}

// ConstraintFromVariable returns the one-term constraint 1·v.
func ConstraintFromVariable[F field.Element[F]](v Variable) Constraint[F] {
	return VariableTerm[F](v).AsConstraint()
}

// IsEmpty reports whether c has no terms, i.e. is the zero polynomial.
func (c Constraint[F]) IsEmpty() bool { return len(c.terms) == 0 }

// NbTerms returns the number of monomials.
func (c Constraint[F]) NbTerms() int { return len(c.terms) }

// Terms returns the monomials in storage order. The slice is owned by the
// constraint; callers must not mutate it.
func (c Constraint[F]) Terms() []Term[F] { return c.terms }

// Clone returns a deep copy of c.
func (c Constraint[F]) Clone() Constraint[F] {
	res := Constraint[F]{terms: make([]Term[F], len(c.terms))}
	copy(res.terms, c.terms)
	return res
}

// Degree returns the maximum degree among all terms.
func (c Constraint[F]) Degree() int {
	d := 0
	for _, t := range c.terms {
		if t.Degree() > d {
			d = t.Degree()
		}
	}
	return d
}

// AsConstant interprets c as a constant and returns the value. Panics if the
// degree is non-zero or there is more than one term.
func (c Constraint[F]) AsConstant() F {
	if len(c.terms) == 0 {
		return field.Zero[F]()
	}
	if len(c.terms) != 1 || c.terms[0].Degree() != 0 {
		panic(fmt.Sprintf("cs: %s is not a constant", c))
	}
	return c.terms[0].Coeff()
}

// AsTerm interprets c as a single term of degree at most 1 and returns it.
// Panics if c does not hold exactly one such term.
func (c Constraint[F]) AsTerm() Term[F] {
	if len(c.terms) != 1 || c.terms[0].Degree() > 1 {
		panic(fmt.Sprintf("cs: %s is not a single term", c))
	}
	return c.terms[0]
}

// ContainsVar reports whether any term contains v.
func (c Constraint[F]) ContainsVar(v Variable) bool {
	for _, t := range c.terms {
		if t.ContainsVar(v) {
			return true
		}
	}
	return false
}

// DegreeForVar returns the maximum multiplicity of v across all terms.
func (c Constraint[F]) DegreeForVar(v Variable) int {
	d := 0
	for _, t := range c.terms {
		if td := t.DegreeForVar(v); td > d {
			d = td
		}
	}
	return d
}

// Variables returns the distinct variables referenced by c, in first-seen
// order.
func (c Constraint[F]) Variables() []Variable {
	var res []Variable
	seen := make(map[Variable]struct{}, len(c.terms))
	for _, t := range c.terms {
		for _, v := range t.Variables() {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			res = append(res, v)
		}
	}
	return res
}

// Scale returns c with every coefficient multiplied by factor.
func (c Constraint[F]) Scale(factor F) Constraint[F] {
	res := c.Clone()
	for i := range res.terms {
		res.terms[i] = res.terms[i].Scale(factor)
	}
	return res
}

// Normalize returns the canonical form of c: every term normalized, terms
// sorted by the total order on terms, like terms combined, zero terms
// dropped. A constraint that normalizes to the zero polynomial comes back
// empty. Normalize is idempotent.
//
// Panics if the resulting degree exceeds 2. The degree check runs here and
// nowhere else, so every path that registers a constraint with the layout
// compiler goes through it.
func (c Constraint[F]) Normalize() Constraint[F] {
	res := c.Clone()
	res.normalize()
	return res
}

// normalize is the in-place form of [Constraint.Normalize]; the receiver
// must own its term slice.
func (c *Constraint[F]) normalize() {
	for i := range c.terms {
		c.terms[i] = c.terms[i].normalize()
	}
	sort.Slice(c.terms, func(i, j int) bool { return cmpTerms(c.terms[i], c.terms[j]) < 0 })

	// like terms are adjacent after sorting: merge runs, drop zeros
	combined := c.terms[:0]
	for _, t := range c.terms {
		if n := len(combined); n > 0 {
			if merged, ok := combined[n-1].combine(t); ok {
				combined[n-1] = merged
				continue
			}
		}
		combined = append(combined, t)
	}
	c.terms = combined[:0]
	for _, t := range combined {
		if !t.IsZero() {
			c.terms = append(c.terms, t)
		}
	}

	if d := c.Degree(); d > maxConstraintDegree {
		panic(fmt.Sprintf("cs: degree %d exceeds %d after normalization: %s", d, maxConstraintDegree, c))
	}
}

// Add returns c + o, normalized.
func (c Constraint[F]) Add(o Constraint[F]) Constraint[F] {
	res := Constraint[F]{terms: make([]Term[F], 0, len(c.terms)+len(o.terms))}
	res.terms = append(res.terms, c.terms...)
	res.terms = append(res.terms, o.terms...)
	res.normalize()
	return res
}

// Sub returns c − o, normalized.
func (c Constraint[F]) Sub(o Constraint[F]) Constraint[F] {
	res := Constraint[F]{terms: make([]Term[F], 0, len(c.terms)+len(o.terms))}
	res.terms = append(res.terms, c.terms...)
	for _, t := range o.terms {
		res.terms = append(res.terms, t.Neg())
	}
	res.normalize()
	return res
}

// Mul returns c · o by distributing over the terms, normalized. Panics if
// the product degree exceeds 2.
func (c Constraint[F]) Mul(o Constraint[F]) Constraint[F] {
	res := EmptyConstraint[F]()
	for _, t := range c.terms {
		res = res.Add(o.MulTerm(t))
	}
	return res
}

// AddTerm returns c with t appended, without normalization.
func (c Constraint[F]) AddTerm(t Term[F]) Constraint[F] {
	res := Constraint[F]{terms: make([]Term[F], 0, len(c.terms)+1)}
	res.terms = append(res.terms, c.terms...)
	res.terms = append(res.terms, t)
	return res
}

// SubTerm returns c with −t appended, without normalization.
func (c Constraint[F]) SubTerm(t Term[F]) Constraint[F] {
	return c.AddTerm(t.Neg())
}

// MulTerm returns c · t, normalized.
func (c Constraint[F]) MulTerm(t Term[F]) Constraint[F] {
	res := Constraint[F]{terms: make([]Term[F], 0, len(c.terms))}
	for _, existing := range c.terms {
		res.terms = append(res.terms, existing.Mul(t))
	}
	res.normalize()
	return res
}

// SplitMaxQuadratic normalizes c and splits it into quadratic terms, linear
// terms and a constant. This is the form the layout compiler stores in the
// compiled artifact.
func (c Constraint[F]) SplitMaxQuadratic() ([]QuadTerm[F], []LinTerm[F], F) {
	n := c.Normalize()
	var (
		quad     []QuadTerm[F]
		lin      []LinTerm[F]
		constant = field.Zero[F]()
	)
	for _, t := range n.terms {
		switch t.Degree() {
		case 2:
			quad = append(quad, QuadTerm[F]{Coeff: t.Coeff(), A: t.inner[0], B: t.inner[1]})
		case 1:
			lin = append(lin, LinTerm[F]{Coeff: t.Coeff(), V: t.inner[0]})
		case 0:
			constant = t.Coeff()
		default:
			panic(fmt.Sprintf("cs: degree %d term in a split constraint", t.Degree()))
		}
	}
	return quad, lin, constant
}

// ExpressVariable solves the constraint for v: interpreting c as
// a·v + rest = 0, it returns −a⁻¹·rest. The variable must appear in exactly
// one term, and that term must be linear.
func (c Constraint[F]) ExpressVariable(v Variable) Constraint[F] {
	n := c.Normalize()
	rest := Constraint[F]{terms: make([]Term[F], 0, len(n.terms))}
	prefactor := field.Zero[F]()
	found := false
	for _, t := range n.terms {
		if !t.ContainsVar(v) {
			rest.terms = append(rest.terms, t)
			continue
		}
		if found || t.Degree() != 1 {
			panic(fmt.Sprintf("cs: %s does not contain %s as a single linear term", c, v))
		}
		found = true
		prefactor = t.prefactorFor(v)
	}
	if !found {
		panic(fmt.Sprintf("cs: %s does not contain %s", c, v))
	}
	scale := prefactor.Inverse().Neg()
	for i := range rest.terms {
		rest.terms[i] = rest.terms[i].Scale(scale)
	}
	rest.normalize()
	return rest
}

// SubstituteVariable replaces every occurrence of v in c by the given linear
// expression and returns the normalized result. Where v appears linearly the
// expression is scaled in; where v appears in a quadratic term the expression
// is multiplied by the co-factor variable. Panics if v appears with
// multiplicity above 1 in any term, or if the substitution pushes the degree
// beyond 2.
func (c Constraint[F]) SubstituteVariable(v Variable, expression Constraint[F]) Constraint[F] {
	if !c.ContainsVar(v) {
		panic(fmt.Sprintf("cs: %s does not contain %s", c, v))
	}
	if c.DegreeForVar(v) != 1 {
		panic(fmt.Sprintf("cs: %s contains %s with multiplicity above 1", c, v))
	}

	res := Constraint[F]{terms: make([]Term[F], 0, len(c.terms))}
	var extra []Constraint[F]
	for _, t := range c.terms {
		if !t.ContainsVar(v) {
			res.terms = append(res.terms, t)
			continue
		}
		switch t.Degree() {
		case 1:
			extra = append(extra, expression.Scale(t.Coeff()))
		case 2:
			other := t.inner[0]
			if other == v {
				other = t.inner[1]
			}
			if other.IsPlaceholder() {
				panic("cs: malformed quadratic term")
			}
			extra = append(extra, expression.MulTerm(ScaledVariableTerm(t.Coeff(), other)))
		default:
			panic(fmt.Sprintf("cs: cannot substitute into the degree-%d term %s", t.Degree(), t))
		}
	}
	for _, e := range extra {
		res = res.Add(e)
	}
	res.normalize()
	return res
}

// Evaluate computes the concrete value of the polynomial under the given
// variable assignment.
func (c Constraint[F]) Evaluate(value func(Variable) F) F {
	quad, lin, constant := c.SplitMaxQuadratic()
	res := constant
	for _, q := range quad {
		res = res.Add(q.Coeff.Mul(value(q.A)).Mul(value(q.B)))
	}
	for _, l := range lin {
		res = res.Add(l.Coeff.Mul(value(l.V)))
	}
	return res
}

// HashCode returns a collision-resistant identifier of the normalized
// constraint. Gadget caches key on it to deduplicate equivalent requests.
func (c Constraint[F]) HashCode() [16]byte {
	n := c.Normalize()
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	var buf [4]byte
	for _, t := range n.terms {
		h.Write([]byte{byte(t.degree)})
		for _, v := range t.Variables() {
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			h.Write(buf[:])
		}
		h.Write(t.coeff.Bytes())
	}
	sum := h.Sum(nil)
	return [16]byte(sum[:16])
}

func (c Constraint[F]) String() string {
	if len(c.terms) == 0 {
		return "0"
	}
	parts := make([]string, len(c.terms))
	for i, t := range c.terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}
