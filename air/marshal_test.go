package air_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/air"
	gnarkio "github.com/consensys/gnark-air/io"

	"github.com/consensys/gnark-air/field/koalabear"
)

func TestArtifactRoundTrip(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)

	assert.NoError(gnarkio.RoundTripCheck(artifact, func() gnarkio.WriterReaderTo {
		return new(air.CompiledCircuitArtifact[fr])
	}))
}

func TestDelegationDescriptionRoundTrip(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)

	desc := &air.DelegationProcessorDescription[fr]{
		DelegationType:     1994,
		TraceLen:           1 << 20,
		RequestsPerCircuit: 1 << 16,
		Artifact:           artifact,
	}
	assert.NoError(gnarkio.RoundTripCheck(desc, func() gnarkio.WriterReaderTo {
		return new(air.DelegationProcessorDescription[fr])
	}))
}

func TestArtifactVersionGate(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)

	artifact.Version = "99.0.0" // the struct is immutable by convention; tests cheat
	data, err := artifact.ToBytes()
	assert.NoError(err)

	var decoded air.CompiledCircuitArtifact[fr]
	_, err = decoded.FromBytes(data)
	assert.ErrorIs(err, air.ErrIncompatibleVersion)
}

func TestArtifactFieldMismatch(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)

	var buf bytes.Buffer
	_, err = artifact.WriteTo(&buf)
	assert.NoError(err)

	var wrongField air.CompiledCircuitArtifact[koalabear.Element]
	_, err = wrongField.ReadFrom(&buf)
	assert.ErrorContains(err, "modulus")
}

func TestSemanticsSurviveRoundTrip(t *testing.T) {
	assert := require.New(t)
	b := sampleBuilder(t)
	artifact, err := air.Compile(b)
	assert.NoError(err)
	row, err := b.Solve()
	assert.NoError(err)

	var buf bytes.Buffer
	_, err = artifact.WriteTo(&buf)
	assert.NoError(err)
	var decoded air.CompiledCircuitArtifact[fr]
	_, err = decoded.ReadFrom(&buf)
	assert.NoError(err)

	// the reconstructed artifact accepts and rejects the same rows
	assert.NoError(decoded.CheckSatisfied(row))
	assert.Equal(artifact.NbConstraints(), decoded.NbConstraints())
	assert.Equal(artifact.NbLookups(), decoded.NbLookups())
}
