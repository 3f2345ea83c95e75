package cs

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog"

	"github.com/consensys/gnark-air/debug"
	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/internal/circuitdefer"
	"github.com/consensys/gnark-air/internal/kvstore"
	"github.com/consensys/gnark-air/logger"
	"github.com/consensys/gnark-air/profile"
)

// InvariantKind tags a deferred obligation recorded at allocation time.
type InvariantKind uint8

const (
	// InvariantBoolean obliges the layout compiler to emit x² − x = 0 for the
	// tagged variable.
	InvariantBoolean InvariantKind = iota
	// InvariantRangeChecked obliges a lookup of the tagged variable into the
	// 8-bit or 16-bit range table.
	InvariantRangeChecked
	// InvariantLinkage binds the Src column of every row to the Dst column of
	// the following row, and pins both ends of the chain to public boundary
	// values at the first and one-before-last rows.
	InvariantLinkage
)

// Invariant is a deferred obligation. It has no polynomial representation at
// the point it is recorded; the layout compiler materializes every recorded
// invariant exactly once.
type Invariant struct {
	Kind     InvariantKind
	Var      Variable // Boolean, RangeChecked
	Width    uint8    // RangeChecked: 8 or 16
	Src, Dst Variable // Linkage
}

func (inv Invariant) String() string {
	switch inv.Kind {
	case InvariantBoolean:
		return fmt.Sprintf("boolean(%s)", inv.Var)
	case InvariantRangeChecked:
		return fmt.Sprintf("range%d(%s)", inv.Width, inv.Var)
	case InvariantLinkage:
		return fmt.Sprintf("linkage(%s -> %s)", inv.Src, inv.Dst)
	default:
		return fmt.Sprintf("invariant(%d)", inv.Kind)
	}
}

// WitnessClosure computes the values of its output variables from the values
// of its input variables. Closures run in registration order during witness
// generation, strictly before any constraint is checked against concrete
// values; inputs of later closures may be outputs of earlier ones. Closures
// must be deterministic.
type WitnessClosure[F field.Element[F]] func(inputs []F, outputs []F) error

type witnessBinding[F field.Element[F]] struct {
	inputs  []Variable
	outputs []Variable
	fn      WitnessClosure[F]
}

// Builder accumulates a single-row circuit description: variables,
// normalized constraints, lookup queries, deferred invariants, witness
// bindings and memory access records. It is not safe for concurrent use;
// circuit construction is a single-threaded, deterministic pass.
type Builder[F field.Element[F]] struct {
	kvstore.Store

	nbVariables uint32

	constraints []Constraint[F]
	lookups     []LookupQuery[F]
	invariants  []Invariant

	bindings []witnessBinding[F]

	// booleans dedups boolean invariants so a variable is never tagged twice
	booleans   *bitset.BitSet
	bound      *bitset.BitSet
	referenced *bitset.BitSet

	equalsCache map[[16]byte]Boolean

	ramAccesses  []ShuffleRamAccess[F]
	delegation   []DelegationRequest[F]
	lazyInitSlot *LazyInitSlot

	deferredDone int
	sealed       bool

	log zerolog.Logger
}

// NewBuilder returns an empty circuit builder. capacity is an estimate of
// the number of constraints, used to size internal storage.
func NewBuilder[F field.Element[F]](capacity int) *Builder[F] {
	return &Builder[F]{
		Store:       kvstore.New(),
		constraints: make([]Constraint[F], 0, capacity),
		booleans:    bitset.New(64),
		bound:       bitset.New(64),
		referenced:  bitset.New(64),
		equalsCache: make(map[[16]byte]Boolean),
		log:         logger.Logger(),
	}
}

func (b *Builder[F]) mutable() {
	if b.sealed {
		panic("cs: builder is sealed, the layout compiler already consumed it")
	}
}

// AddVariable allocates a fresh placeholder variable with no value and no
// constraint attached.
func (b *Builder[F]) AddVariable() Variable {
	b.mutable()
	v := Variable(b.nbVariables)
	if v == placeholderVariable {
		panic("cs: variable space exhausted")
	}
	b.nbVariables++
	return v
}

// AddBooleanVariable allocates a fresh variable, records a boolean invariant
// for it and returns the positive boolean view. No constraint is emitted
// here; the layout compiler materializes x² − x = 0 once per tagged variable.
func (b *Builder[F]) AddBooleanVariable() Boolean {
	v := b.AddVariable()
	b.MarkBoolean(v)
	return BoolIs(v)
}

// MarkBoolean records a boolean invariant for an existing variable. Marking
// the same variable twice records a single invariant.
func (b *Builder[F]) MarkBoolean(v Variable) {
	b.mutable()
	if v.IsPlaceholder() {
		panic("cs: MarkBoolean over the placeholder variable")
	}
	if b.booleans.Test(uint(v)) {
		return
	}
	b.booleans.Set(uint(v))
	b.invariants = append(b.invariants, Invariant{Kind: InvariantBoolean, Var: v})
}

// IsBoolean reports whether v carries a boolean invariant.
func (b *Builder[F]) IsBoolean(v Variable) bool {
	return b.booleans.Test(uint(v))
}

// AddVariableWithRangeCheck allocates a fresh variable and records a
// range-check invariant of the given width. Supported widths are 8 and 16.
func (b *Builder[F]) AddVariableWithRangeCheck(width uint8) Variable {
	v := b.AddVariable()
	b.RangeCheckVariable(v, width)
	return v
}

// RangeCheckVariable records a range-check invariant for an existing
// variable.
func (b *Builder[F]) RangeCheckVariable(v Variable, width uint8) {
	b.mutable()
	if width != 8 && width != 16 {
		panic(fmt.Sprintf("cs: unsupported range-check width %d", width))
	}
	if v.IsPlaceholder() {
		panic("cs: range check over the placeholder variable")
	}
	b.invariants = append(b.invariants, Invariant{Kind: InvariantRangeChecked, Var: v, Width: width})
}

// AddLinkage records a linkage invariant: the src column of each row equals
// the dst column of the next row, with chunk-boundary pins at the outer rows.
func (b *Builder[F]) AddLinkage(src, dst Variable) {
	b.mutable()
	if src.IsPlaceholder() || dst.IsPlaceholder() {
		panic("cs: linkage over the placeholder variable")
	}
	b.invariants = append(b.invariants, Invariant{Kind: InvariantLinkage, Src: src, Dst: dst})
	b.markReferenced(src, dst)
}

// AddConstraint normalizes c and records it. A constraint that normalizes to
// the zero polynomial is dropped; one that normalizes to a nonzero constant
// can never be satisfied and panics immediately.
func (b *Builder[F]) AddConstraint(c Constraint[F]) {
	b.mutable()
	n := c.Normalize()
	if n.IsEmpty() {
		return
	}
	if n.Degree() == 0 {
		panic(fmt.Sprintf("cs: constraint normalizes to the nonzero constant %s, circuit cannot be satisfied", n))
	}
	b.markReferenced(n.Variables()...)
	b.constraints = append(b.constraints, n)
	profile.RecordConstraint()
}

// EnforceLookup records a lookup query: the evaluated input tuple must be a
// row of the table identified by the evaluated table id. All terms must be
// at most linear.
func (b *Builder[F]) EnforceLookup(table Term[F], inputs [LookupTupleWidth]Term[F]) {
	b.mutable()
	if table.Degree() > 1 {
		panic(fmt.Sprintf("cs: lookup table id %s is not linear", table))
	}
	for _, in := range inputs {
		if in.Degree() > 1 {
			panic(fmt.Sprintf("cs: lookup input %s is not linear", in))
		}
		b.markReferenced(in.Variables()...)
	}
	b.markReferenced(table.Variables()...)
	b.lookups = append(b.lookups, LookupQuery[F]{Table: table, Inputs: inputs})
	profile.RecordConstraint()
}

// SetValues attaches a value-computation closure to the output variables.
// The closure is stored, not executed; [Solve] runs all closures in
// registration order. SetValues never adds a constraint: pairing every
// witness-bound variable with an enforcing constraint or lookup is the
// caller's responsibility.
func (b *Builder[F]) SetValues(outputs []Variable, fn WitnessClosure[F], inputs ...Variable) {
	b.mutable()
	if len(outputs) == 0 {
		panic("cs: SetValues with no outputs")
	}
	for _, v := range outputs {
		if v.IsPlaceholder() {
			panic("cs: SetValues over the placeholder variable")
		}
		if b.bound.Test(uint(v)) {
			panic(fmt.Sprintf("cs: %s already has a witness binding", v))
		}
		b.bound.Set(uint(v))
	}
	for _, v := range inputs {
		if v.IsPlaceholder() {
			panic("cs: SetValues reads the placeholder variable")
		}
	}
	b.bindings = append(b.bindings, witnessBinding[F]{
		inputs:  append([]Variable(nil), inputs...),
		outputs: append([]Variable(nil), outputs...),
		fn:      fn,
	})
}

// AssignConstant binds v to a fixed value.
func (b *Builder[F]) AssignConstant(v Variable, value F) {
	b.SetValues([]Variable{v}, func(_, outputs []F) error {
		outputs[0] = value
		return nil
	})
}

// Defer queues cb to run at the start of layout compilation, after user
// construction code finished. Callbacks run in registration order, exactly
// once.
func (b *Builder[F]) Defer(cb func(*Builder[F]) error) {
	b.mutable()
	circuitdefer.Put(b, cb)
}

// RunDeferred drains the deferred-callback queue. The layout compiler calls
// it before materializing invariants. Callbacks registered while draining run
// in the same pass; draining an already-drained queue is a no-op.
func (b *Builder[F]) RunDeferred() error {
	for ; b.deferredDone < len(circuitdefer.GetAll[func(*Builder[F]) error](b)); b.deferredDone++ {
		cb := circuitdefer.GetAll[func(*Builder[F]) error](b)[b.deferredDone]
		if err := cb(b); err != nil {
			return fmt.Errorf("deferred callback %d: %w", b.deferredDone, err)
		}
	}
	return nil
}

// Seal freezes the builder: every mutating method panics afterwards. The
// layout compiler seals the builder when its single materialization pass is
// done; sealing twice panics, which is what makes re-compilation fail loudly
// instead of silently duplicating invariants.
//
// In debug builds Seal also fails on witness-bound variables that no
// constraint, lookup or access record ever references.
func (b *Builder[F]) Seal() {
	if b.sealed {
		panic("cs: builder sealed twice")
	}
	if debug.Debug {
		b.checkUnpairedWitness()
	}
	b.sealed = true
}

// Sealed reports whether the layout compiler already consumed the builder.
func (b *Builder[F]) Sealed() bool { return b.sealed }

// checkUnpairedWitness flags variables that have a value binding but are
// never read by anything the prover checks. Such a variable is almost always
// a forgotten constraint.
func (b *Builder[F]) checkUnpairedWitness() {
	unpaired := b.bound.Difference(b.referenced)
	if unpaired.None() {
		return
	}
	offenders := make([]Variable, 0, unpaired.Count())
	for i, ok := unpaired.NextSet(0); ok; i, ok = unpaired.NextSet(i + 1) {
		offenders = append(offenders, Variable(i))
	}
	b.log.Error().Int("count", len(offenders)).Msg("witness-bound variables never constrained")
	panic(fmt.Sprintf("cs: %d witness-bound variables are never constrained, first %s", len(offenders), offenders[0]))
}

func (b *Builder[F]) markReferenced(vars ...Variable) {
	for _, v := range vars {
		if !v.IsPlaceholder() {
			b.referenced.Set(uint(v))
		}
	}
}

// NbVariables returns the number of allocated variables.
func (b *Builder[F]) NbVariables() int { return int(b.nbVariables) }

// NbConstraints returns the number of recorded constraints so far. The
// layout compiler adds more when it materializes invariants.
func (b *Builder[F]) NbConstraints() int { return len(b.constraints) }

// Constraints returns the recorded constraints. The slice is owned by the
// builder.
func (b *Builder[F]) Constraints() []Constraint[F] { return b.constraints }

// Lookups returns the recorded lookup queries.
func (b *Builder[F]) Lookups() []LookupQuery[F] { return b.lookups }

// Invariants returns the deferred obligations in allocation order.
func (b *Builder[F]) Invariants() []Invariant { return b.invariants }
