package cs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/field/babybear"
	"github.com/consensys/gnark-air/field/koalabear"
)

// fr is the field most tests run on; a handful instantiate koalabear too, to
// pin the generic code against both 31-bit moduli.
type fr = babybear.Element

type frKoala = koalabear.Element

func u64[F field.Element[F]](v uint64) F { return field.Uint64[F](v) }

// solveAndCheck drains the deferred queue the way the layout compiler would,
// runs witness generation, and verifies the full row against everything the
// builder recorded: constraints, boolean and range-check invariants, and
// lookup-table membership. Linkage invariants span rows and are checked by
// the chunk-level tests instead.
func solveAndCheck[F field.Element[F]](t *testing.T, b *Builder[F]) *Assignment[F] {
	t.Helper()
	require.NoError(t, b.RunDeferred())
	a, err := b.Solve()
	require.NoError(t, err)
	requireSatisfied(t, b, a)
	return a
}

func requireSatisfied[F field.Element[F]](t *testing.T, b *Builder[F], a *Assignment[F]) {
	t.Helper()
	value := func(v Variable) F { return a.MustGet(v) }

	for i, c := range b.Constraints() {
		require.True(t, c.Evaluate(value).IsZero(), "constraint %d not satisfied: %s", i, c)
	}
	for _, inv := range b.Invariants() {
		switch inv.Kind {
		case InvariantBoolean:
			require.LessOrEqual(t, a.MustGet(inv.Var).Uint64(), uint64(1), "boolean invariant on %s", inv.Var)
		case InvariantRangeChecked:
			require.Less(t, a.MustGet(inv.Var).Uint64(), uint64(1)<<inv.Width, "range-%d invariant on %s", inv.Width, inv.Var)
		}
	}
	for i, q := range b.Lookups() {
		id := TableType(q.Table.AsConstraint().Evaluate(value).Uint64())
		def, ok := GetTable(id)
		require.True(t, ok, "lookup %d targets unregistered table %d", i, id)
		var tuple [LookupTupleWidth]uint64
		for j, in := range q.Inputs {
			tuple[j] = in.AsConstraint().Evaluate(value).Uint64()
		}
		require.True(t, def.Contains(tuple), "lookup %d: %v is not a row of %q", i, tuple, def.Name)
	}
}

// constraintsHold reports whether every recorded constraint evaluates to
// zero; the negative tests use it where requireSatisfied would abort.
func constraintsHold[F field.Element[F]](b *Builder[F], a *Assignment[F]) bool {
	value := func(v Variable) F { return a.MustGet(v) }
	for _, c := range b.Constraints() {
		if !c.Evaluate(value).IsZero() {
			return false
		}
	}
	return true
}

// invariantsHold reports whether every boolean and range-check invariant is
// met by the assignment.
func invariantsHold[F field.Element[F]](b *Builder[F], a *Assignment[F]) bool {
	for _, inv := range b.Invariants() {
		switch inv.Kind {
		case InvariantBoolean:
			if a.MustGet(inv.Var).Uint64() > 1 {
				return false
			}
		case InvariantRangeChecked:
			if a.MustGet(inv.Var).Uint64() >= uint64(1)<<inv.Width {
				return false
			}
		}
	}
	return true
}

// bindConst is shorthand for assigning literal values in tests.
func bindConst[F field.Element[F]](b *Builder[F], v Variable, value uint64) {
	b.AssignConstant(v, field.Uint64[F](value))
}
