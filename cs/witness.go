package cs

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/consensys/gnark-air/field"
)

// Assignment holds concrete witness values for a solved row. Variables that
// no closure produced have no value; reading one is an error, not a silent
// zero.
type Assignment[F field.Element[F]] struct {
	values []F
	set    *bitset.BitSet
}

// NewAssignment returns an empty assignment sized for n variables.
func NewAssignment[F field.Element[F]](n int) *Assignment[F] {
	return &Assignment[F]{
		values: make([]F, n),
		set:    bitset.New(uint(n)),
	}
}

// Get returns the value of v and whether one was produced.
func (a *Assignment[F]) Get(v Variable) (F, bool) {
	if v.IsPlaceholder() || int(v) >= len(a.values) || !a.set.Test(uint(v)) {
		return field.Zero[F](), false
	}
	return a.values[v], true
}

// MustGet returns the value of v, panicking if no closure produced one.
func (a *Assignment[F]) MustGet(v Variable) F {
	val, ok := a.Get(v)
	if !ok {
		panic(fmt.Sprintf("cs: %s read before a witness closure produced it", v))
	}
	return val
}

// Set stores a value for v. Used by the chunk assembler when stitching rows;
// within one row, values come from [Builder.Solve].
func (a *Assignment[F]) Set(v Variable, value F) {
	if v.IsPlaceholder() || int(v) >= len(a.values) {
		panic(fmt.Sprintf("cs: assignment write out of range: %s", v))
	}
	a.values[v] = value
	a.set.Set(uint(v))
}

// Len returns the number of variable slots.
func (a *Assignment[F]) Len() int { return len(a.values) }

// Solve runs every recorded witness closure in registration order and
// returns the resulting assignment. A closure reading a variable that no
// earlier closure produced is an error: bindings later in the registration
// order may depend on earlier outputs, never the reverse.
func (b *Builder[F]) Solve() (*Assignment[F], error) {
	a := NewAssignment[F](int(b.nbVariables))
	for i, binding := range b.bindings {
		inputs := make([]F, len(binding.inputs))
		for j, v := range binding.inputs {
			val, ok := a.Get(v)
			if !ok {
				return nil, fmt.Errorf("cs: closure %d reads %s before any closure produced it", i, v)
			}
			inputs[j] = val
		}
		outputs := make([]F, len(binding.outputs))
		if err := binding.fn(inputs, outputs); err != nil {
			return nil, fmt.Errorf("cs: closure %d: %w", i, err)
		}
		for j, v := range binding.outputs {
			a.Set(v, outputs[j])
		}
	}
	return a, nil
}
