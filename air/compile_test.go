package air_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/air"
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/field/babybear"
)

type fr = babybear.Element

func bindConst(b *cs.Builder[fr], v cs.Variable, value uint64) {
	b.AssignConstant(v, field.Uint64[fr](value))
}

// sampleBuilder describes a small but representative row: booleans, both
// range-check widths, an equality gadget, relation lanes, a register read, a
// masked-out delegation request and a lazy-init slot.
func sampleBuilder(t *testing.T) *cs.Builder[fr] {
	t.Helper()
	b := cs.NewBuilder[fr](32)

	x := b.AddVariableWithRangeCheck(8)
	y := b.AddVariableWithRangeCheck(8)
	bindConst(b, x, 3)
	bindConst(b, y, 4)
	b.EqualsTo(cs.ConstraintFromVariable[fr](x), cs.ConstraintFromVariable[fr](y))

	opt := cs.NewOptimizationContext(b)
	isAdd := b.AddBooleanVariable()
	isMul := b.AddBooleanVariable()
	bindConst(b, isAdd.Variable(), 1)
	bindConst(b, isMul.Variable(), 0)
	opt.AppendAddRelation(cs.ConstraintFromVariable[fr](x), cs.ConstraintFromVariable[fr](y), isAdd)
	opt.AppendMulRelation(cs.ConstraintFromVariable[fr](x), cs.ConstraintFromVariable[fr](y), isMul)
	opt.EnforceAll()

	access := b.AddRegisterAccess(1, cs.TimestampRs1, false, cs.ConstantBool(true))
	bindConst(b, access.ReadValue[0], 7)
	bindConst(b, access.ReadValue[1], 0)

	b.AddDelegationRequest(cs.DelegationRequest[fr]{
		Exec:          cs.ConstantBool(false),
		Type:          cs.UintTerm[fr](0),
		MemOffsetHigh: cs.UintTerm[fr](0),
	})

	slot := b.AddLazyInitSlot()
	bindConst(b, slot.Enable.Variable(), 1)
	bindConst(b, slot.Address[0], 5)
	bindConst(b, slot.Address[1], 0)
	bindConst(b, slot.PrevAddress[0], 0)
	bindConst(b, slot.PrevAddress[1], 0)
	bindConst(b, slot.InitValue[0], 7)
	bindConst(b, slot.InitValue[1], 0)
	bindConst(b, slot.TeardownValue[0], 7)
	bindConst(b, slot.TeardownValue[1], 0)
	bindConst(b, slot.TeardownTimestamp[0], 0)
	bindConst(b, slot.TeardownTimestamp[1], 0)

	return b
}

func TestBooleanMaterialization(t *testing.T) {
	assert := require.New(t)
	b := cs.NewBuilder[fr](8)
	u := b.AddBooleanVariable()
	v := b.AddBooleanVariable()
	b.MarkBoolean(u.Variable()) // second tag must not duplicate the invariant
	bindConst(b, u.Variable(), 1)
	bindConst(b, v.Variable(), 0)

	artifact, err := air.Compile(b)
	assert.NoError(err)
	assert.Equal([]cs.Variable{u.Variable(), v.Variable()}, artifact.BooleanColumns)

	// exactly one x² − x = 0 constraint per tagged variable
	for _, col := range artifact.BooleanColumns {
		count := 0
		for _, c := range artifact.Constraints {
			if c.DegreeForVar(col) == 2 && c.NbTerms() == 2 {
				count++
			}
		}
		assert.Equal(1, count, "boolean column %s", col)
	}
}

func TestRangeCheckBatching(t *testing.T) {
	assert := require.New(t)
	b := cs.NewBuilder[fr](8)
	vars := []cs.Variable{
		b.AddVariableWithRangeCheck(8),
		b.AddVariableWithRangeCheck(8),
		b.AddVariableWithRangeCheck(8),
		b.AddVariableWithRangeCheck(16),
	}
	for _, v := range vars {
		bindConst(b, v, 200)
	}

	artifact, err := air.Compile(b)
	assert.NoError(err)

	// one paired 8x8 query, one odd 8-bit query, one 16-bit query
	assert.Equal(3, artifact.NbLookups())
	assert.Len(artifact.RangeChecks, 4)
	assert.Equal(uint8(8), artifact.RangeChecks[0].Width)
	assert.Equal(uint8(16), artifact.RangeChecks[3].Width)

	row, err := b.Solve()
	assert.NoError(err)
	assert.NoError(artifact.CheckSatisfied(row))
}

func TestRangeCheckRejectsOutOfRange(t *testing.T) {
	assert := require.New(t)
	b := cs.NewBuilder[fr](4)
	v := b.AddVariableWithRangeCheck(8)
	bindConst(b, v, 300)

	artifact, err := air.Compile(b)
	assert.NoError(err)
	row, err := b.Solve()
	assert.NoError(err)
	assert.ErrorContains(artifact.CheckSatisfied(row), "lookup")
}

func TestLinkageBecomesBoundaryDescriptor(t *testing.T) {
	assert := require.New(t)
	b := cs.NewBuilder[fr](4)
	src := b.AddVariable()
	dst := b.AddVariable()
	bindConst(b, src, 1)
	bindConst(b, dst, 1)
	b.AddLinkage(src, dst)

	artifact, err := air.Compile(b)
	assert.NoError(err)
	assert.Equal([]air.LinkageDescriptor{{Src: src, Dst: dst}}, artifact.Boundary)
	// linkage spans rows; it must not surface as a same-row constraint
	assert.Equal(0, artifact.NbConstraints())
}

func TestRecompilationFails(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	_, err := air.Compile(b)
	assert.NoError(err)
	_, err = air.Compile(b)
	assert.ErrorIs(err, air.ErrRecompilation)
}

func TestConstructionPanicSurfacesAsError(t *testing.T) {
	assert := require.New(t)
	b := cs.NewBuilder[fr](4)
	v := b.AddVariable()
	bindConst(b, v, 1)
	vt := cs.VariableTerm[fr](v)
	cubed := vt.Mul(vt).Mul(vt)
	b.Defer(func(b *cs.Builder[fr]) error {
		b.AddConstraint(cubed.AsConstraint()) // degree 3, rejected at normalization
		return nil
	})
	// the constraint must reference v so the deferred panic is the only failure
	b.AddConstraint(cs.ConstraintFromVariable[fr](v).SubTerm(cs.UintTerm[fr](1)))

	_, err := air.Compile(b)
	assert.Error(err)
	assert.Contains(err.Error(), "degree")
}

func TestCompileEndToEnd(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)

	row, err := b.Solve()
	assert.NoError(err)
	assert.NoError(artifact.CheckSatisfied(row))

	record, ok := artifact.LazyInitRecord(row)
	assert.True(ok)
	assert.True(record.Enabled)
	assert.Equal([2]uint64{5, 0}, record.Address)

	events := artifact.AccessEvents(0, row)
	assert.Len(events, 1)
	assert.Equal(uint64(7), events[0].ReadValue)
	assert.True(events[0].IsRegister)
}

func TestCompileDeterminism(t *testing.T) {
	assert := require.New(t)

	compile := func() (*air.CompiledCircuitArtifact[fr], []byte) {
		b := sampleBuilder(t)
		artifact, err := air.Compile(b)
		assert.NoError(err)
		data, err := artifact.ToBytes()
		assert.NoError(err)
		return artifact, data
	}

	a1, data1 := compile()
	a2, data2 := compile()

	assert.Empty(cmp.Diff(a1.BooleanColumns, a2.BooleanColumns))
	assert.Empty(cmp.Diff(a1.RangeChecks, a2.RangeChecks))
	assert.Empty(cmp.Diff(a1.Boundary, a2.Boundary))
	assert.Empty(cmp.Diff(a1.Tables, a2.Tables))
	assert.Equal(data1, data2, "serialized artifacts must be byte-identical")

	f1, err := a1.Fingerprint()
	assert.NoError(err)
	f2, err := a2.Fingerprint()
	assert.NoError(err)
	assert.Equal(f1, f2)
}
