package air

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// TableBinding records a lookup table the circuit references: the artifact
// carries the shape, the contents stay externally defined (see cs.TableDef).
type TableBinding struct {
	ID    cs.TableType
	Name  string
	Arity int
	Size  uint64
}

// RangeCheckColumn is a column whose values must lie in [0, 2^Width).
type RangeCheckColumn struct {
	Column cs.Variable
	Width  uint8
}

// LinkageDescriptor binds the Src column of every row to the Dst column of
// the following row; the chunk assembler pins the chain ends to boundary
// values at the first and one-before-last rows.
type LinkageDescriptor struct {
	Src, Dst cs.Variable
}

// MemoryLayout groups the columns feeding the unified shuffle argument:
// every register, RAM and delegation access of the row template, the
// per-cycle delegation request descriptor, and the lazy-init/teardown
// bookkeeping slot.
type MemoryLayout[F field.Element[F]] struct {
	Accesses   []cs.ShuffleRamAccess[F]
	Delegation []cs.DelegationRequest[F]
	LazyInit   *cs.LazyInitSlot
}

// CompiledCircuitArtifact is the terminal output of layout compilation:
// the column count, every normalized degree-2 constraint, the lookup queries
// and table bindings, the boundary descriptors and the memory layout. It is
// immutable; two compilations of the same circuit produce equal artifacts,
// byte-identical once serialized, which is what allows hashing an artifact
// into a verification key.
type CompiledCircuitArtifact[F field.Element[F]] struct {
	// Version of the gnark-air module that produced the artifact.
	Version string
	// Modulus pins the field the artifact was compiled over.
	Modulus uint64

	NumColumns uint32

	Constraints []cs.Constraint[F]
	Lookups     []cs.LookupQuery[F]

	// BooleanColumns carry a materialized x² − x = 0 constraint, in
	// invariant-allocation order.
	BooleanColumns []cs.Variable
	RangeChecks    []RangeCheckColumn
	Boundary       []LinkageDescriptor
	Tables         []TableBinding

	Memory MemoryLayout[F]
}

// NbConstraints returns the number of compiled constraints, materialized
// boolean constraints included.
func (a *CompiledCircuitArtifact[F]) NbConstraints() int { return len(a.Constraints) }

// NbLookups returns the number of compiled lookup queries, batched range
// checks included.
func (a *CompiledCircuitArtifact[F]) NbLookups() int { return len(a.Lookups) }

// Fingerprint hashes the serialized artifact. Verification keys commit to
// this value, which is why compilation must be deterministic.
func (a *CompiledCircuitArtifact[F]) Fingerprint() ([32]byte, error) {
	data, err := a.ToBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// CheckSatisfied verifies one solved row against the artifact: every
// compiled constraint must vanish, every lookup tuple must be a row of its
// table, and on rows where an access (or the lazy-init slot, or a delegation
// request) is masked out, every column feeding the shuffle argument must
// read zero. Boundary descriptors span adjacent rows and are checked by the
// segment-level helpers instead (see CheckSegmentOrdering, StitchSegments).
func (a *CompiledCircuitArtifact[F]) CheckSatisfied(row *cs.Assignment[F]) error {
	value := func(v cs.Variable) F { return row.MustGet(v) }

	for i, c := range a.Constraints {
		if !c.Evaluate(value).IsZero() {
			return fmt.Errorf("constraint %d not satisfied: %s", i, c)
		}
	}
	for i, q := range a.Lookups {
		id := cs.TableType(q.Table.AsConstraint().Evaluate(value).Uint64())
		def, ok := cs.GetTable(id)
		if !ok {
			return fmt.Errorf("lookup %d targets unregistered table %d", i, id)
		}
		var tuple [cs.LookupTupleWidth]uint64
		for j, in := range q.Inputs {
			tuple[j] = in.AsConstraint().Evaluate(value).Uint64()
		}
		if !def.Contains(tuple) {
			return fmt.Errorf("lookup %d: %v is not a row of %q", i, tuple, def.Name)
		}
	}
	return a.checkPadding(row)
}

// checkPadding enforces the multiplicity-0 rule: a masked-out request must
// leave every one of its argument columns at zero.
func (a *CompiledCircuitArtifact[F]) checkPadding(row *cs.Assignment[F]) error {
	value := func(v cs.Variable) F { return row.MustGet(v) }
	boolValue := func(b cs.Boolean) bool {
		return cs.BooleanConstraint[F](b).Evaluate(value).IsOne()
	}

	for i, acc := range a.Memory.Accesses {
		if boolValue(acc.Exec) {
			continue
		}
		for _, t := range acc.Address {
			if !t.AsConstraint().Evaluate(value).IsZero() {
				return fmt.Errorf("access %d: nonzero address on a padding row", i)
			}
		}
		for _, v := range acc.ReadValue {
			if !value(v).IsZero() {
				return fmt.Errorf("access %d: nonzero read value on a padding row", i)
			}
		}
		if acc.IsWrite {
			for _, v := range acc.WriteValue {
				if !value(v).IsZero() {
					return fmt.Errorf("access %d: nonzero write value on a padding row", i)
				}
			}
		}
	}
	for i, req := range a.Memory.Delegation {
		if boolValue(req.Exec) {
			continue
		}
		if !req.Type.AsConstraint().Evaluate(value).IsZero() ||
			!req.MemOffsetHigh.AsConstraint().Evaluate(value).IsZero() {
			return fmt.Errorf("delegation request %d: nonzero descriptor on a padding row", i)
		}
	}
	if slot := a.Memory.LazyInit; slot != nil && !boolValue(slot.Enable) {
		for _, vars := range [][2]cs.Variable{slot.Address, slot.InitValue, slot.TeardownValue, slot.TeardownTimestamp} {
			for _, v := range vars {
				if !value(v).IsZero() {
					return fmt.Errorf("lazy-init slot: nonzero column on a disabled row")
				}
			}
		}
	}
	return nil
}
