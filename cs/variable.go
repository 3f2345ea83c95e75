package cs

import (
	"fmt"

	"github.com/consensys/gnark-air/field"
)

// Variable is an opaque handle into the flat table of witness slots managed
// by a [Builder]. It carries no value at construction time; a value is bound
// later through a recorded witness closure (see [Builder.SetValues]).
//
// The zero handle is a valid variable. The all-ones handle is reserved as the
// placeholder filling unused monomial slots.
type Variable uint32

const placeholderVariable = ^Variable(0)

// Placeholder returns the reserved "no variable" handle.
func Placeholder() Variable { return placeholderVariable }

// IsPlaceholder reports whether v is the reserved placeholder handle.
func (v Variable) IsPlaceholder() bool { return v == placeholderVariable }

func (v Variable) String() string {
	if v.IsPlaceholder() {
		return "v_"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

// Num is a value that is either a compile-time field constant or a variable.
// Machine circuits use it to keep constant folding out of the witness table.
type Num[F field.Element[F]] struct {
	v        Variable
	constant F
	isConst  bool
}

// NewNum wraps a variable.
func NewNum[F field.Element[F]](v Variable) Num[F] {
	if v.IsPlaceholder() {
		panic("cs: Num over the placeholder variable")
	}
	return Num[F]{v: v}
}

// ConstNum wraps a field constant.
func ConstNum[F field.Element[F]](value F) Num[F] {
	return Num[F]{constant: value, isConst: true}
}

// IsConstant reports whether n holds a compile-time constant.
func (n Num[F]) IsConstant() bool { return n.isConst }

// Constant returns the constant value. Panics if n wraps a variable.
func (n Num[F]) Constant() F {
	if !n.isConst {
		panic("cs: Constant called on a variable Num")
	}
	return n.constant
}

// Variable returns the wrapped variable. Panics if n is a constant.
func (n Num[F]) Variable() Variable {
	if n.isConst {
		panic("cs: Variable called on a constant Num")
	}
	return n.v
}

// Term returns n as a single term, 1·v or the constant.
func (n Num[F]) Term() Term[F] {
	if n.isConst {
		return ConstantTerm(n.constant)
	}
	return VariableTerm[F](n.v)
}

// AsConstraint returns n as a one-term constraint.
func (n Num[F]) AsConstraint() Constraint[F] {
	return n.Term().AsConstraint()
}

func (n Num[F]) String() string {
	if n.isConst {
		return n.constant.String()
	}
	return n.v.String()
}

// Boolean is a typed view over a value known to be 0 or 1. It comes in three
// forms: the positive view Is(v), the negated view Not(v) and a compile-time
// constant. Variables behind Is/Not views must carry a boolean invariant
// (see [Builder.AddBooleanVariable]); the view itself adds no constraint.
//
// Some call sites accept only the positive view: converting a Not view with
// [BooleanTerm] is a construction-time error. [BooleanConstraint] accepts all
// three forms.
type Boolean struct {
	v       Variable
	negated bool
	isConst bool
	value   bool
}

// BoolIs returns the positive boolean view of v.
func BoolIs(v Variable) Boolean {
	if v.IsPlaceholder() {
		panic("cs: boolean view over the placeholder variable")
	}
	return Boolean{v: v}
}

// BoolNot returns the negated boolean view of v.
func BoolNot(v Variable) Boolean {
	if v.IsPlaceholder() {
		panic("cs: boolean view over the placeholder variable")
	}
	return Boolean{v: v, negated: true}
}

// ConstantBool returns the compile-time boolean b.
func ConstantBool(b bool) Boolean {
	return Boolean{isConst: true, value: b}
}

// IsConstant reports whether b is a compile-time constant.
func (b Boolean) IsConstant() bool { return b.isConst }

// ConstantValue returns the constant value. Panics if b wraps a variable.
func (b Boolean) ConstantValue() bool {
	if !b.isConst {
		panic("cs: ConstantValue called on a variable Boolean")
	}
	return b.value
}

// Variable returns the wrapped variable. Panics if b is a constant.
func (b Boolean) Variable() Variable {
	if b.isConst {
		panic("cs: Variable called on a constant Boolean")
	}
	return b.v
}

// IsNegated reports whether b is the Not view.
func (b Boolean) IsNegated() bool { return !b.isConst && b.negated }

// Toggled returns the logical negation of b: Is and Not views swap, constants
// flip. No constraint is added.
func (b Boolean) Toggled() Boolean {
	if b.isConst {
		b.value = !b.value
		return b
	}
	b.negated = !b.negated
	return b
}

func (b Boolean) String() string {
	switch {
	case b.isConst:
		return fmt.Sprintf("%t", b.value)
	case b.negated:
		return "!" + b.v.String()
	default:
		return b.v.String()
	}
}

// BooleanTerm converts the positive view (or a constant) into a single term.
// The negated view has no single-term form; passing one panics. Call sites
// that can afford an extra term use [BooleanConstraint] instead.
func BooleanTerm[F field.Element[F]](b Boolean) Term[F] {
	switch {
	case b.isConst:
		if b.value {
			return ConstantTerm(field.One[F]())
		}
		return ConstantTerm(field.Zero[F]())
	case b.negated:
		panic(fmt.Sprintf("cs: negated boolean view %s where the positive view is required", b))
	default:
		return VariableTerm[F](b.v)
	}
}

// BooleanConstraint converts any boolean view into a linear constraint:
// v for the Is view, 1 − v for the Not view, 0 or 1 for constants.
func BooleanConstraint[F field.Element[F]](b Boolean) Constraint[F] {
	if b.isConst || !b.negated {
		return BooleanTerm[F](b).AsConstraint()
	}
	one := ConstantTerm(field.One[F]())
	return one.AsConstraint().SubTerm(VariableTerm[F](b.v))
}
