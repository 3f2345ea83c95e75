package profile_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/field/babybear"
	"github.com/consensys/gnark-air/profile"
)

type fr = babybear.Element

// squareGadget emits one multiplication constraint; its name should show up
// in the profile's flat view.
func squareGadget(b *cs.Builder[fr], x cs.Variable) cs.Variable {
	out := b.AddVariable()
	b.AddConstraint(cs.VariableTerm[fr](x).Mul(cs.VariableTerm[fr](x)).
		Sub(cs.VariableTerm[fr](out)))
	b.SetValues([]cs.Variable{out}, func(in, o []fr) error {
		o[0] = in[0].Mul(in[0])
		return nil
	}, x)
	return out
}

func buildRow(b *cs.Builder[fr], n int) {
	x := b.AddVariable()
	b.AssignConstant(x, field.Uint64[fr](3))
	for i := 0; i < n; i++ {
		x = squareGadget(b, x)
	}
}

func TestSessionCountsConstraints(t *testing.T) {
	p := profile.Start(profile.WithNoOutput())
	b := cs.NewBuilder[fr](16)
	buildRow(b, 5)
	p.Stop()

	require.Equal(t, 5, p.NbConstraints())
}

func TestTopAttributesGadget(t *testing.T) {
	p := profile.Start(profile.WithNoOutput())
	b := cs.NewBuilder[fr](16)
	buildRow(b, 3)
	p.Stop()

	top := p.Top()
	require.Contains(t, top, "Showing nodes accounting for 3, 100% of 3 total")
	require.Contains(t, top, "squareGadget")
}

func TestOverlappingSessions(t *testing.T) {
	outer := profile.Start(profile.WithNoOutput())
	b := cs.NewBuilder[fr](16)
	buildRow(b, 2)

	inner := profile.Start(profile.WithNoOutput())
	buildRow(b, 3)
	inner.Stop()

	buildRow(b, 1)
	outer.Stop()

	require.Equal(t, 3, inner.NbConstraints())
	require.Equal(t, 6, outer.NbConstraints())
}

func TestLookupQueriesAreSampled(t *testing.T) {
	p := profile.Start(profile.WithNoOutput())
	b := cs.NewBuilder[fr](16)
	o := cs.NewOptimizationContext(b)
	flag := b.AddBooleanVariable()
	b.AssignConstant(flag.Variable(), field.One[fr]())
	x := b.AddVariableWithRangeCheck(8)
	y := b.AddVariableWithRangeCheck(8)
	b.AssignConstant(x, field.Uint64[fr](0xa5))
	b.AssignConstant(y, field.Uint64[fr](0x0f))
	o.AppendLookupRelation(cs.TableXor, cs.ConstraintFromVariable[fr](x), cs.ConstraintFromVariable[fr](y), flag)
	o.EnforceAll()
	p.Stop()

	// the lane resolves to at least the lookup query plus the selection
	// constraints binding the pooled output
	require.Greater(t, p.NbConstraints(), 0)
}

func TestWritesPprofFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "row.pprof")
	p := profile.Start(profile.WithPath(path))
	b := cs.NewBuilder[fr](16)
	buildRow(b, 2)
	p.Stop()

	require.FileExists(t, path)
}

func TestUnusedBuilderProducesNoSamples(t *testing.T) {
	p := profile.Start(profile.WithNoOutput())
	p.Stop()
	require.Equal(t, 0, p.NbConstraints())
	require.False(t, strings.Contains(p.Top(), "squareGadget"))
}
