package cs

import (
	"fmt"

	"github.com/consensys/gnark-air/field"
)

// linearSpan is the witness-time form of a linear constraint: a constant
// plus coefficient-weighted references into a shared closure input slice.
type linearSpan[F field.Element[F]] struct {
	constant F
	coeffs   []F
	indices  []int
}

// closureInputs collects the distinct variables a gadget closure reads and
// assigns each a stable position in the closure input slice.
type closureInputs struct {
	vars  []Variable
	index map[Variable]int
}

func newClosureInputs() *closureInputs {
	return &closureInputs{index: make(map[Variable]int)}
}

func (in *closureInputs) indexOf(v Variable) int {
	if i, ok := in.index[v]; ok {
		return i
	}
	i := len(in.vars)
	in.index[v] = i
	in.vars = append(in.vars, v)
	return i
}

// spanOf lowers a linear constraint into a [linearSpan] over the shared
// input set. Panics if c is not linear.
func spanOf[F field.Element[F]](c Constraint[F], in *closureInputs) linearSpan[F] {
	quad, lin, constant := c.SplitMaxQuadratic()
	if len(quad) != 0 {
		panic(fmt.Sprintf("cs: %s is not linear", c))
	}
	span := linearSpan[F]{constant: constant}
	for _, l := range lin {
		span.coeffs = append(span.coeffs, l.Coeff)
		span.indices = append(span.indices, in.indexOf(l.V))
	}
	return span
}

func (s linearSpan[F]) eval(inputs []F) F {
	res := s.constant
	for i, c := range s.coeffs {
		res = res.Add(c.Mul(inputs[s.indices[i]]))
	}
	return res
}

// spanOfBoolean lowers a boolean view into a linear span; constants become
// constant spans, views read the underlying variable.
func spanOfBoolean[F field.Element[F]](b Boolean, in *closureInputs) linearSpan[F] {
	return spanOf(BooleanConstraint[F](b), in)
}

// EqualsTo returns a boolean flag that is 1 exactly when lhs and rhs
// evaluate to the same value, via the inverse-or-zero technique: with
// d = lhs − rhs and a free auxiliary variable inv, it enforces
//
//	d·flag = 0
//	d·inv + flag − 1 = 0
//
// Witness generation supplies inv = d⁻¹ when d ≠ 0; when d = 0 the value of
// inv is irrelevant and the zero-inverse convention supplies 0. Both
// operands must be linear. Equivalent requests are deduplicated and return
// the same flag.
func (b *Builder[F]) EqualsTo(lhs, rhs Constraint[F]) Boolean {
	diff := lhs.Sub(rhs)
	if diff.Degree() > 1 {
		panic(fmt.Sprintf("cs: EqualsTo over the non-linear difference %s", diff))
	}
	if diff.Degree() == 0 {
		// compile-time constants compare at construction time
		return ConstantBool(diff.IsEmpty())
	}

	key := diff.HashCode()
	if flag, ok := b.equalsCache[key]; ok {
		return flag
	}

	flag := b.AddBooleanVariable()
	inv := b.AddVariable()

	flagTerm := BooleanTerm[F](flag)
	b.AddConstraint(diff.MulTerm(flagTerm))
	b.AddConstraint(diff.MulTerm(VariableTerm[F](inv)).
		AddTerm(flagTerm).
		SubTerm(ConstantTerm(field.One[F]())))

	in := newClosureInputs()
	span := spanOf(diff, in)
	b.SetValues([]Variable{flag.Variable(), inv}, func(inputs, outputs []F) error {
		d := span.eval(inputs)
		if d.IsZero() {
			outputs[0] = field.One[F]()
		} else {
			outputs[0] = field.Zero[F]()
		}
		outputs[1] = d.Inverse()
		return nil
	}, in.vars...)

	b.equalsCache[key] = flag
	return flag
}

// IsZero is EqualsTo(x, 0).
func (b *Builder[F]) IsZero(x Constraint[F]) Boolean {
	return b.EqualsTo(x, EmptyConstraint[F]())
}

// Choose materializes out = flag·(ifTrue − ifFalse) + ifFalse, i.e. ifTrue
// when the flag holds and ifFalse otherwise. Both branches must be linear so
// the selection constraint stays at most quadratic. All three boolean views
// are accepted. Witness generation sets out directly from the selected
// branch rather than evaluating the constraint.
func (b *Builder[F]) Choose(flag Boolean, ifTrue, ifFalse Constraint[F]) Variable {
	if ifTrue.Degree() > 1 || ifFalse.Degree() > 1 {
		panic(fmt.Sprintf("cs: Choose branches must be linear, got %s and %s", ifTrue, ifFalse))
	}
	out := b.AddVariable()

	fc := BooleanConstraint[F](flag)
	b.AddConstraint(fc.Mul(ifTrue.Sub(ifFalse)).
		Add(ifFalse).
		SubTerm(VariableTerm[F](out)))

	in := newClosureInputs()
	flagSpan := spanOfBoolean[F](flag, in)
	trueSpan := spanOf(ifTrue, in)
	falseSpan := spanOf(ifFalse, in)
	b.SetValues([]Variable{out}, func(inputs, outputs []F) error {
		if flagSpan.eval(inputs).IsOne() {
			outputs[0] = trueSpan.eval(inputs)
		} else {
			outputs[0] = falseSpan.eval(inputs)
		}
		return nil
	}, in.vars...)

	return out
}

// ChooseFromOrthogonalVariants materializes one output from mutually
// exclusive candidates: out = Σ flags[i]·variants[i]. At most one flag may
// be set per row; the caller guarantees orthogonality, typically through the
// decoder's exactly-one-hot constraint — the gadget does not check it, and a
// violated assumption makes the circuit unsound or unsatisfiable downstream.
// With no flag set the output is 0.
//
// Flags must be positive views or constants; variants must be linear.
func (b *Builder[F]) ChooseFromOrthogonalVariants(flags []Boolean, variants []Constraint[F]) Variable {
	out := b.AddVariable()
	b.chooseFromOrthogonalVariantsInto(out, flags, variants)
	return out
}

// chooseFromOrthogonalVariantsInto is ChooseFromOrthogonalVariants targeting
// an existing output variable. The optimization context uses it to select
// into pooled variables it handed out at registration time.
func (b *Builder[F]) chooseFromOrthogonalVariantsInto(out Variable, flags []Boolean, variants []Constraint[F]) {
	if len(flags) != len(variants) {
		panic(fmt.Sprintf("cs: %d flags against %d variants", len(flags), len(variants)))
	}
	if len(flags) == 0 {
		panic("cs: ChooseFromOrthogonalVariants with no variants")
	}

	acc := EmptyConstraint[F]()
	for i := range flags {
		if variants[i].Degree() > 1 {
			panic(fmt.Sprintf("cs: variant %d is not linear: %s", i, variants[i]))
		}
		acc = acc.Add(variants[i].MulTerm(BooleanTerm[F](flags[i])))
	}
	b.AddConstraint(acc.SubTerm(VariableTerm[F](out)))

	in := newClosureInputs()
	flagSpans := make([]linearSpan[F], len(flags))
	variantSpans := make([]linearSpan[F], len(variants))
	for i := range flags {
		flagSpans[i] = spanOfBoolean[F](flags[i], in)
		variantSpans[i] = spanOf(variants[i], in)
	}
	b.SetValues([]Variable{out}, func(inputs, outputs []F) error {
		outputs[0] = field.Zero[F]()
		for i := range flagSpans {
			// evaluate only the active branch
			if flagSpans[i].eval(inputs).IsOne() {
				outputs[0] = variantSpans[i].eval(inputs)
				break
			}
		}
		return nil
	}, in.vars...)
}

// Masked materializes out = flag·x: the value of x on rows where the flag
// holds and 0 elsewhere. Memory and lookup argument columns use it so that
// derived flags of zero-input gadgets cannot leak nonzero values into
// padding rows.
func (b *Builder[F]) Masked(flag Boolean, x Constraint[F]) Variable {
	return b.Choose(flag, x, EmptyConstraint[F]())
}
