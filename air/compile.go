// Package air turns a finished circuit description into an immutable
// compiled artifact: the layout compiler materializes every deferred
// invariant exactly once, batches range checks into lookup queries, resolves
// linkage into boundary descriptors and freezes the result.
package air

import (
	"errors"
	"fmt"

	gnarkair "github.com/consensys/gnark-air"
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/logger"
)

// ErrRecompilation is returned when Compile is handed a builder a previous
// compilation already consumed.
var ErrRecompilation = errors.New("air: builder already sealed, layout compilation runs exactly once")

// Compile runs the single layout pass over a finished builder: it drains the
// deferred-callback queue, materializes every recorded invariant in
// allocation order, seals the builder and returns the artifact. Construction
// failures surface as errors here; the constraint-building layer panics on
// programmer mistakes and Compile is the one place that recovers them.
//
// Compile consumes the builder. A second call on the same builder returns
// ErrRecompilation.
func Compile[F field.Element[F]](b *cs.Builder[F]) (artifact *CompiledCircuitArtifact[F], err error) {
	log := logger.Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("air: layout compilation: %v", r)
		}
	}()

	if b.Sealed() {
		return nil, ErrRecompilation
	}
	if err := b.RunDeferred(); err != nil {
		return nil, fmt.Errorf("air: %w", err)
	}

	layout := newLayout(b)
	for _, inv := range b.Invariants() {
		layout.materialize(inv)
	}
	layout.flushRangeChecks()

	// freezes the builder; from here on the description cannot change
	b.Seal()

	artifact = &CompiledCircuitArtifact[F]{
		Version:        gnarkair.Version.String(),
		Modulus:        field.Zero[F]().Modulus(),
		NumColumns:     uint32(b.NbVariables()),
		Constraints:    b.Constraints(),
		Lookups:        b.Lookups(),
		BooleanColumns: layout.booleans,
		RangeChecks:    layout.rangeChecks,
		Boundary:       layout.boundary,
		Tables:         tableBindings(),
		Memory: MemoryLayout[F]{
			Accesses:   b.RamAccesses(),
			Delegation: b.DelegationRequests(),
			LazyInit:   b.LazyInit(),
		},
	}

	log.Info().
		Int("columns", b.NbVariables()).
		Int("constraints", len(artifact.Constraints)).
		Int("lookups", len(artifact.Lookups)).
		Int("booleans", len(artifact.BooleanColumns)).
		Msg("compiled AIR artifact")
	return artifact, nil
}

// layout is the in-flight state of the materialization pass.
type layout[F field.Element[F]] struct {
	b           *cs.Builder[F]
	booleans    []cs.Variable
	rangeChecks []RangeCheckColumn
	boundary    []LinkageDescriptor

	// 8-bit checks batch in pairs against the 8x8 table; pending holds the
	// odd one waiting for a partner.
	pending8 []cs.Variable
}

func newLayout[F field.Element[F]](b *cs.Builder[F]) *layout[F] {
	return &layout[F]{b: b}
}

// materialize emits the polynomial realization of one invariant. This is the
// only place invariant-backed constraints are created.
func (l *layout[F]) materialize(inv cs.Invariant) {
	switch inv.Kind {
	case cs.InvariantBoolean:
		v := cs.VariableTerm[F](inv.Var)
		l.b.AddConstraint(v.Mul(v).AsConstraint().SubTerm(v))
		l.booleans = append(l.booleans, inv.Var)

	case cs.InvariantRangeChecked:
		l.rangeChecks = append(l.rangeChecks, RangeCheckColumn{Column: inv.Var, Width: inv.Width})
		switch inv.Width {
		case 8:
			l.pending8 = append(l.pending8, inv.Var)
			if len(l.pending8) == 2 {
				l.lookupPair(l.pending8[0], l.pending8[1])
				l.pending8 = l.pending8[:0]
			}
		case 16:
			l.b.EnforceLookup(cs.TableConstant[F](cs.TableRangeCheck16), [cs.LookupTupleWidth]cs.Term[F]{
				cs.VariableTerm[F](inv.Var),
				cs.UintTerm[F](0),
				cs.UintTerm[F](0),
			})
		default:
			panic(fmt.Sprintf("air: range-check invariant of width %d", inv.Width))
		}

	case cs.InvariantLinkage:
		l.boundary = append(l.boundary, LinkageDescriptor{Src: inv.Src, Dst: inv.Dst})

	default:
		panic(fmt.Sprintf("air: unknown invariant %s", inv))
	}
}

// flushRangeChecks pairs a trailing odd 8-bit check with a zero column.
func (l *layout[F]) flushRangeChecks() {
	if len(l.pending8) == 1 {
		l.b.EnforceLookup(cs.TableConstant[F](cs.TableRangeCheck8x8), [cs.LookupTupleWidth]cs.Term[F]{
			cs.VariableTerm[F](l.pending8[0]),
			cs.UintTerm[F](0),
			cs.UintTerm[F](0),
		})
		l.pending8 = l.pending8[:0]
	}
}

func (l *layout[F]) lookupPair(a, b cs.Variable) {
	l.b.EnforceLookup(cs.TableConstant[F](cs.TableRangeCheck8x8), [cs.LookupTupleWidth]cs.Term[F]{
		cs.VariableTerm[F](a),
		cs.VariableTerm[F](b),
		cs.UintTerm[F](0),
	})
}

// tableBindings snapshots the registry so the artifact names the tables its
// lookups may select at witness time.
func tableBindings() []TableBinding {
	entries := cs.RegisteredTables()
	bindings := make([]TableBinding, len(entries))
	for i, e := range entries {
		bindings[i] = TableBinding{ID: e.ID, Name: e.Def.Name, Arity: e.Def.Arity, Size: e.Def.Size}
	}
	return bindings
}
