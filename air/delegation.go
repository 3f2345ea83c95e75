package air

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/consensys/gnark-air/field"
)

// DelegationProcessorDescription describes one compiled delegation
// co-processor: the delegation type the main machine's CSR requests select
// it by, the trace geometry, and the co-processor's own compiled artifact.
// The cross-chunk stitching logic consumes it next to the main machine's
// artifact; both share the unified shuffle argument through the identical
// access-record shape.
type DelegationProcessorDescription[F field.Element[F]] struct {
	// DelegationType is the id written to the delegation CSR to invoke this
	// processor.
	DelegationType uint32
	// TraceLen is the padded, power-of-two number of rows per proving chunk.
	TraceLen uint32
	// RequestsPerCircuit is the number of delegation requests one circuit
	// instance absorbs.
	RequestsPerCircuit uint32

	Artifact *CompiledCircuitArtifact[F]
}

type wireDelegationHead struct {
	DelegationType     uint32
	TraceLen           uint32
	RequestsPerCircuit uint32
}

// WriteTo serializes the description: a CBOR head, then the artifact with
// its own length prefix.
func (d *DelegationProcessorDescription[F]) WriteTo(w io.Writer) (int64, error) {
	em, err := encMode()
	if err != nil {
		return 0, err
	}
	var head bytes.Buffer
	if err := em.NewEncoder(&head).Encode(wireDelegationHead{
		DelegationType:     d.DelegationType,
		TraceLen:           d.TraceLen,
		RequestsPerCircuit: d.RequestsPerCircuit,
	}); err != nil {
		return 0, err
	}
	artifact, err := d.Artifact.ToBytes()
	if err != nil {
		return 0, err
	}

	var n int64
	lengths := []byte{}
	lengths = binary.LittleEndian.AppendUint64(lengths, uint64(head.Len()))
	lengths = binary.LittleEndian.AppendUint64(lengths, uint64(len(artifact)))
	for _, section := range [][]byte{lengths, head.Bytes(), artifact} {
		written, err := w.Write(section)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadFrom deserializes the description.
func (d *DelegationProcessorDescription[F]) ReadFrom(r io.Reader) (int64, error) {
	var lengths [16]byte
	n, err := io.ReadFull(r, lengths[:])
	if err != nil {
		return int64(n), err
	}
	headLen := binary.LittleEndian.Uint64(lengths[0:8])
	artifactLen := binary.LittleEndian.Uint64(lengths[8:16])

	body := make([]byte, headLen+artifactLen)
	m, err := io.ReadFull(r, body)
	total := int64(n) + int64(m)
	if err != nil {
		return total, err
	}

	var head wireDelegationHead
	if err := cbor.NewDecoder(bytes.NewReader(body[:headLen])).Decode(&head); err != nil {
		return total, err
	}
	d.DelegationType = head.DelegationType
	d.TraceLen = head.TraceLen
	d.RequestsPerCircuit = head.RequestsPerCircuit

	d.Artifact = new(CompiledCircuitArtifact[F])
	read, err := d.Artifact.FromBytes(body[headLen:])
	if err != nil {
		return total, err
	}
	if uint64(read) != artifactLen {
		return total, errors.New("air: trailing bytes after delegation artifact")
	}
	return total, nil
}
