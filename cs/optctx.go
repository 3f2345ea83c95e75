package cs

import (
	"fmt"

	"github.com/consensys/gnark-air/field"
)

// RelationClass tags a candidate computation registered with the
// optimization context. Classes are enforced in the declaration order below;
// the order is part of the compiled artifact's determinism guarantee.
type RelationClass uint8

const (
	// RelationAdd enforces x1 + x2 = out + 2¹⁶·carry. Subtraction reuses it
	// through complemented operands.
	RelationAdd RelationClass = iota
	// RelationMul enforces x1·x2 = lo + 2¹⁶·hi. In a 31-bit field the first
	// operand must be byte-range for the split to be unambiguous; wider
	// products go through partial-product composition.
	RelationMul
	// RelationIsZero enforces out = 1 exactly when x1 = 0, via
	// inverse-or-zero. On rows where no registration is active the all-zero
	// input makes out = 1; consumers mask it with their own exec flag.
	RelationIsZero
	// RelationLookup enforces (x1, x2, out) to be a row of the selected
	// byte-op table. Inactive rows degrade to the zero-entry table.
	RelationLookup

	numRelationClasses
)

func (rc RelationClass) String() string {
	switch rc {
	case RelationAdd:
		return "add"
	case RelationMul:
		return "mul"
	case RelationIsZero:
		return "is-zero"
	case RelationLookup:
		return "lookup"
	default:
		return fmt.Sprintf("relation(%d)", uint8(rc))
	}
}

// relation is one registered candidate: its exec flag, its input
// expressions, and for lookups the table it targets.
type relation[F field.Element[F]] struct {
	flag   Boolean
	inputs []Constraint[F]
	table  TableType
}

// relationLane groups candidates that can coexist on one row. Two
// registrations share a lane only when their exec flags are mutually
// exclusive; a second registration under the same flag opens the next lane.
// Pooled output variables belong to the lane, so inactive candidates cost no
// variables beyond the pool's high-water mark.
type relationLane[F field.Element[F]] struct {
	relations []relation[F]
	outputs   []Variable
}

// OptimizationContext accumulates per-opcode candidate relations and
// resolves each class into a single enforced computation per row. Circuit
// construction describes every opcode's computation unconditionally; only
// the registration whose exec flag is set feeds the shared output slots.
type OptimizationContext[F field.Element[F]] struct {
	b          *Builder[F]
	lanes      [numRelationClasses][]relationLane[F]
	occurrence [numRelationClasses]map[Boolean]int
	enforced   bool
}

// NewOptimizationContext returns an empty context over the builder.
func NewOptimizationContext[F field.Element[F]](b *Builder[F]) *OptimizationContext[F] {
	o := &OptimizationContext[F]{b: b}
	for i := range o.occurrence {
		o.occurrence[i] = make(map[Boolean]int)
	}
	return o
}

// laneFor places a registration: candidates under distinct exec flags share
// the lowest lane they both fit in, a repeated flag advances to a fresh one.
func (o *OptimizationContext[F]) laneFor(class RelationClass, flag Boolean) *relationLane[F] {
	if o.enforced {
		panic("cs: relation registered after EnforceAll")
	}
	if flag.IsNegated() {
		panic(fmt.Sprintf("cs: exec flag %s must be the positive boolean view", flag))
	}
	lane := o.occurrence[class][flag]
	o.occurrence[class][flag] = lane + 1
	for len(o.lanes[class]) <= lane {
		o.lanes[class] = append(o.lanes[class], relationLane[F]{})
	}
	return &o.lanes[class][lane]
}

// AppendAddRelation registers the candidate x1 + x2 = sum + 2¹⁶·carry and
// returns the lane's pooled (sum, carry) variables: sum is range-checked to
// 16 bits, carry is boolean. The same variables come back for every
// registration on the lane; they hold the active candidate's values.
func (o *OptimizationContext[F]) AppendAddRelation(x1, x2 Constraint[F], flag Boolean) (sum, carry Variable) {
	lane := o.laneFor(RelationAdd, flag)
	if lane.outputs == nil {
		sum = o.b.AddVariableWithRangeCheck(16)
		carry = o.b.AddBooleanVariable().Variable()
		lane.outputs = []Variable{sum, carry}
	}
	lane.relations = append(lane.relations, relation[F]{flag: flag, inputs: []Constraint[F]{x1, x2}})
	return lane.outputs[0], lane.outputs[1]
}

// AppendMulRelation registers the candidate x1·x2 = lo + 2¹⁶·hi and returns
// the lane's pooled (lo, hi): lo is range-checked to 16 bits, hi to 8. For
// the split to identify the integer product in a 31-bit field, x1 must
// evaluate below 2⁸; callers decompose wider products into partials.
func (o *OptimizationContext[F]) AppendMulRelation(x1, x2 Constraint[F], flag Boolean) (lo, hi Variable) {
	lane := o.laneFor(RelationMul, flag)
	if lane.outputs == nil {
		lo = o.b.AddVariableWithRangeCheck(16)
		hi = o.b.AddVariableWithRangeCheck(8)
		lane.outputs = []Variable{lo, hi}
	}
	lane.relations = append(lane.relations, relation[F]{flag: flag, inputs: []Constraint[F]{x1, x2}})
	return lane.outputs[0], lane.outputs[1]
}

// AppendIsZeroRelation registers the candidate "x1 equals zero" and returns
// the lane's pooled boolean output. On rows where no candidate is active the
// selected input is zero and the output reads 1; consumers mask it.
func (o *OptimizationContext[F]) AppendIsZeroRelation(x1 Constraint[F], flag Boolean) Boolean {
	lane := o.laneFor(RelationIsZero, flag)
	if lane.outputs == nil {
		lane.outputs = []Variable{o.b.AddBooleanVariable().Variable()}
	}
	lane.relations = append(lane.relations, relation[F]{flag: flag, inputs: []Constraint[F]{x1}})
	return BoolIs(lane.outputs[0])
}

// AppendLookupRelation registers the candidate (x1, x2, out) ∈ table for one
// of the byte-op tables and returns the lane's pooled output. The table of
// the active candidate is selected at witness time; with none active the
// query degrades to the zero-entry table.
func (o *OptimizationContext[F]) AppendLookupRelation(table TableType, x1, x2 Constraint[F], flag Boolean) Variable {
	switch table {
	case TableXor, TableAnd, TableOr:
	default:
		panic(fmt.Sprintf("cs: lookup relations only target byte-op tables, got table %d", table))
	}
	lane := o.laneFor(RelationLookup, flag)
	if lane.outputs == nil {
		lane.outputs = []Variable{o.b.AddVariable()}
	}
	lane.relations = append(lane.relations, relation[F]{flag: flag, inputs: []Constraint[F]{x1, x2}, table: table})
	return lane.outputs[0]
}

// EnforceAll resolves every relation class, in the fixed class order and
// lane order: it selects the one active input set per lane through
// ChooseFromOrthogonalVariants, binds the pooled outputs, and emits a single
// core constraint (or lookup query) per lane. It runs exactly once;
// registering afterwards or enforcing twice panics.
//
// All flags within a lane must be mutually exclusive. That contract is the
// decoder's to enforce (one-hot over opcode families) and is not checked
// here; violating it makes the circuit unsound or unsatisfiable depending on
// the direction of the violation.
func (o *OptimizationContext[F]) EnforceAll() {
	if o.enforced {
		panic("cs: EnforceAll called twice")
	}
	o.enforced = true

	for class := RelationClass(0); class < numRelationClasses; class++ {
		for i := range o.lanes[class] {
			o.enforceLane(class, &o.lanes[class][i])
		}
	}
}

func (o *OptimizationContext[F]) enforceLane(class RelationClass, lane *relationLane[F]) {
	b := o.b
	flags := make([]Boolean, len(lane.relations))
	for i, r := range lane.relations {
		flags[i] = r.flag
	}
	selectInput := func(j int) Variable {
		variants := make([]Constraint[F], len(lane.relations))
		for i, r := range lane.relations {
			variants[i] = r.inputs[j]
		}
		return b.ChooseFromOrthogonalVariants(flags, variants)
	}

	twoPow16 := field.TwoPowN[F](16)

	switch class {
	case RelationAdd:
		x1, x2 := selectInput(0), selectInput(1)
		sum, carry := lane.outputs[0], lane.outputs[1]
		b.AddConstraint(VariableTerm[F](x1).Add(VariableTerm[F](x2)).
			SubTerm(VariableTerm[F](sum)).
			SubTerm(ScaledVariableTerm(twoPow16, carry)))
		b.SetValues([]Variable{sum, carry}, func(inputs, outputs []F) error {
			s := inputs[0].Uint64() + inputs[1].Uint64()
			outputs[0] = field.Uint64[F](s & 0xffff)
			outputs[1] = field.Uint64[F](s >> 16)
			return nil
		}, x1, x2)

	case RelationMul:
		x1, x2 := selectInput(0), selectInput(1)
		lo, hi := lane.outputs[0], lane.outputs[1]
		b.AddConstraint(VariableTerm[F](x1).Mul(VariableTerm[F](x2)).AsConstraint().
			SubTerm(VariableTerm[F](lo)).
			SubTerm(ScaledVariableTerm(twoPow16, hi)))
		b.SetValues([]Variable{lo, hi}, func(inputs, outputs []F) error {
			p := inputs[0].Uint64() * inputs[1].Uint64()
			outputs[0] = field.Uint64[F](p & 0xffff)
			outputs[1] = field.Uint64[F](p >> 16)
			return nil
		}, x1, x2)

	case RelationIsZero:
		x1 := selectInput(0)
		out := lane.outputs[0]
		inv := b.AddVariable()
		x1t := VariableTerm[F](x1)
		b.AddConstraint(x1t.Mul(VariableTerm[F](out)).AsConstraint())
		b.AddConstraint(x1t.Mul(VariableTerm[F](inv)).AsConstraint().
			AddTerm(VariableTerm[F](out)).
			SubTerm(ConstantTerm(field.One[F]())))
		b.SetValues([]Variable{out, inv}, func(inputs, outputs []F) error {
			if inputs[0].IsZero() {
				outputs[0] = field.One[F]()
			} else {
				outputs[0] = field.Zero[F]()
			}
			outputs[1] = inputs[0].Inverse()
			return nil
		}, x1)

	case RelationLookup:
		x1, x2 := selectInput(0), selectInput(1)
		out := lane.outputs[0]
		tableVariants := make([]Constraint[F], len(lane.relations))
		for i, r := range lane.relations {
			tableVariants[i] = ConstantConstraint(field.Uint64[F](uint64(r.table)))
		}
		table := b.ChooseFromOrthogonalVariants(flags, tableVariants)
		b.EnforceLookup(VariableTerm[F](table), [LookupTupleWidth]Term[F]{
			VariableTerm[F](x1),
			VariableTerm[F](x2),
			VariableTerm[F](out),
		})
		b.SetValues([]Variable{out}, func(inputs, outputs []F) error {
			id := TableType(inputs[0].Uint64())
			if id == TableZeroEntry {
				outputs[0] = field.Zero[F]()
				return nil
			}
			outputs[0] = field.Uint64[F](ByteOpOutput(id, inputs[1].Uint64(), inputs[2].Uint64()))
			return nil
		}, table, x1, x2)

	default:
		panic(fmt.Sprintf("cs: unknown relation class %d", class))
	}
}
