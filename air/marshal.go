package air

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	gnarkair "github.com/consensys/gnark-air"
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
	"github.com/consensys/gnark-air/internal/ioutils"
	"github.com/consensys/gnark-air/logger"
)

// ErrIncompatibleVersion is returned when deserializing an artifact produced
// by another major version of gnark-air.
var ErrIncompatibleVersion = errors.New("air: artifact produced by an incompatible gnark-air version")

// the artifact serializes as four sections so that encoding and decoding
// parallelize: a CBOR meta block (deterministic encoding, since artifacts
// are hashed into verification keys), two intcomp-compressed integer streams
// for constraints and lookups, and a CBOR memory-layout block.
const headerLen = 4 * 8

type header struct {
	metaLen        uint64
	constraintsLen uint64
	lookupsLen     uint64
	memoryLen      uint64
}

func (h *header) toBytes() []byte {
	buf := make([]byte, 0, headerLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.metaLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.constraintsLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.lookupsLen)
	buf = binary.LittleEndian.AppendUint64(buf, h.memoryLen)
	return buf
}

func (h *header) fromBytes(buf []byte) {
	h.metaLen = binary.LittleEndian.Uint64(buf[0:8])
	h.constraintsLen = binary.LittleEndian.Uint64(buf[8:16])
	h.lookupsLen = binary.LittleEndian.Uint64(buf[16:24])
	h.memoryLen = binary.LittleEndian.Uint64(buf[24:32])
}

type wireMeta struct {
	Version     string
	Modulus     uint64
	NumColumns  uint32
	Booleans    []uint32
	RangeChecks []wireRangeCheck
	Boundary    []wireLinkage
	Tables      []wireTable
}

type wireRangeCheck struct {
	Column uint32
	Width  uint8
}

type wireLinkage struct {
	Src, Dst uint32
}

type wireTable struct {
	ID    uint8
	Name  string
	Arity int
	Size  uint64
}

// boolean views and linear terms appear in the memory layout; they encode as
// small fixed structs.
const (
	wireBoolFalse = iota
	wireBoolTrue
	wireBoolIs
	wireBoolNot
)

type wireBoolean struct {
	Kind uint8
	Var  uint32
}

type wireLinTerm struct {
	Coeff uint64
	Var   uint32 // placeholder encodes a constant term
}

type wireAccess struct {
	Address        [2]wireLinTerm
	IsRegister     bool
	IsWrite        bool
	LocalTimestamp int
	ReadValue      [2]uint32
	WriteValue     [2]uint32
	Exec           wireBoolean
}

type wireDelegation struct {
	Exec          wireBoolean
	Type          wireLinTerm
	MemOffsetHigh wireLinTerm
}

type wireLazyInit struct {
	Enable            wireBoolean
	Address           [2]uint32
	PrevAddress       [2]uint32
	InitValue         [2]uint32
	TeardownValue     [2]uint32
	TeardownTimestamp [2]uint32
	Borrow            wireBoolean
	DiffLow, DiffHigh uint32
}

type wireMemory struct {
	Accesses   []wireAccess
	Delegation []wireDelegation
	LazyInit   *wireLazyInit
}

// WriteTo serializes the artifact. The encoding is deterministic: equal
// artifacts produce identical bytes.
func (a *CompiledCircuitArtifact[F]) WriteTo(w io.Writer) (int64, error) {
	data, err := a.ToBytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom deserializes the artifact. It rejects artifacts from another
// major gnark-air version or another field.
func (a *CompiledCircuitArtifact[F]) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	n, err := a.FromBytes(data)
	return int64(n), err
}

// ToBytes serializes the artifact to a byte slice. Sections encode in
// parallel; their concatenation order is fixed.
func (a *CompiledCircuitArtifact[F]) ToBytes() ([]byte, error) {
	var constraints, lookups, memory []byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		constraints, err = a.constraintsToBytes()
		return err
	})
	g.Go(func() error {
		var err error
		lookups, err = a.lookupsToBytes()
		return err
	})
	g.Go(func() error {
		var err error
		memory, err = a.memoryToBytes()
		return err
	})
	meta, err := a.metaToBytes()
	if err != nil {
		return nil, err
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := header{
		metaLen:        uint64(len(meta)),
		constraintsLen: uint64(len(constraints)),
		lookupsLen:     uint64(len(lookups)),
		memoryLen:      uint64(len(memory)),
	}
	buf := h.toBytes()
	buf = append(buf, meta...)
	buf = append(buf, constraints...)
	buf = append(buf, lookups...)
	buf = append(buf, memory...)
	return buf, nil
}

// FromBytes deserializes the artifact from a byte slice and returns the
// number of bytes read.
func (a *CompiledCircuitArtifact[F]) FromBytes(data []byte) (int, error) {
	if len(data) < headerLen {
		return 0, errors.New("air: invalid artifact data length")
	}
	h := new(header)
	h.fromBytes(data)
	total := headerLen + int(h.metaLen+h.constraintsLen+h.lookupsLen+h.memoryLen)
	if len(data) < total {
		return 0, errors.New("air: invalid artifact data length")
	}

	off := uint64(headerLen)
	meta := data[off : off+h.metaLen]
	constraints := data[off+h.metaLen : off+h.metaLen+h.constraintsLen]
	lookups := data[off+h.metaLen+h.constraintsLen : off+h.metaLen+h.constraintsLen+h.lookupsLen]
	memory := data[uint64(total)-h.memoryLen : total]

	if err := a.metaFromBytes(meta); err != nil {
		return 0, err
	}
	var g errgroup.Group
	g.Go(func() error { return a.constraintsFromBytes(constraints) })
	g.Go(func() error { return a.lookupsFromBytes(lookups) })
	g.Go(func() error { return a.memoryFromBytes(memory) })
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

func encMode() (cbor.EncMode, error) {
	return cbor.CoreDetEncOptions().EncMode()
}

func (a *CompiledCircuitArtifact[F]) metaToBytes() ([]byte, error) {
	meta := wireMeta{
		Version:     a.Version,
		Modulus:     a.Modulus,
		NumColumns:  a.NumColumns,
		Booleans:    make([]uint32, len(a.BooleanColumns)),
		RangeChecks: make([]wireRangeCheck, len(a.RangeChecks)),
		Boundary:    make([]wireLinkage, len(a.Boundary)),
		Tables:      make([]wireTable, len(a.Tables)),
	}
	for i, v := range a.BooleanColumns {
		meta.Booleans[i] = uint32(v)
	}
	for i, rc := range a.RangeChecks {
		meta.RangeChecks[i] = wireRangeCheck{Column: uint32(rc.Column), Width: rc.Width}
	}
	for i, l := range a.Boundary {
		meta.Boundary[i] = wireLinkage{Src: uint32(l.Src), Dst: uint32(l.Dst)}
	}
	for i, t := range a.Tables {
		meta.Tables[i] = wireTable{ID: uint8(t.ID), Name: t.Name, Arity: t.Arity, Size: t.Size}
	}
	em, err := encMode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := em.NewEncoder(&buf).Encode(meta); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *CompiledCircuitArtifact[F]) metaFromBytes(data []byte) error {
	var meta wireMeta
	if err := cbor.NewDecoder(bytes.NewReader(data)).Decode(&meta); err != nil {
		return err
	}
	if err := checkVersion(meta.Version); err != nil {
		return err
	}
	if modulus := field.Zero[F]().Modulus(); meta.Modulus != modulus {
		return fmt.Errorf("air: artifact compiled over modulus %d, field has %d", meta.Modulus, modulus)
	}
	a.Version = meta.Version
	a.Modulus = meta.Modulus
	a.NumColumns = meta.NumColumns
	a.BooleanColumns = make([]cs.Variable, len(meta.Booleans))
	for i, v := range meta.Booleans {
		a.BooleanColumns[i] = cs.Variable(v)
	}
	a.RangeChecks = make([]RangeCheckColumn, len(meta.RangeChecks))
	for i, rc := range meta.RangeChecks {
		a.RangeChecks[i] = RangeCheckColumn{Column: cs.Variable(rc.Column), Width: rc.Width}
	}
	a.Boundary = make([]LinkageDescriptor, len(meta.Boundary))
	for i, l := range meta.Boundary {
		a.Boundary[i] = LinkageDescriptor{Src: cs.Variable(l.Src), Dst: cs.Variable(l.Dst)}
	}
	a.Tables = make([]TableBinding, len(meta.Tables))
	for i, t := range meta.Tables {
		a.Tables[i] = TableBinding{ID: cs.TableType(t.ID), Name: t.Name, Arity: t.Arity, Size: t.Size}
	}
	return nil
}

// checkVersion gates compatibility on the serialized module version: a
// different major version is an error, a different minor version a warning.
func checkVersion(object string) error {
	objectVersion, err := semver.Parse(object)
	if err != nil {
		return fmt.Errorf("air: parsing artifact version: %w", err)
	}
	binaryVersion := gnarkair.Version
	if objectVersion.Major != binaryVersion.Major {
		return fmt.Errorf("%w: artifact %s, binary %s", ErrIncompatibleVersion, objectVersion, binaryVersion)
	}
	if objectVersion.Minor != binaryVersion.Minor {
		log := logger.Logger()
		log.Warn().Str("binary", binaryVersion.String()).Str("artifact", objectVersion.String()).
			Msg("gnark-air minor version mismatch, no compatibility guarantees")
	}
	return nil
}

// constraints flatten into one integer stream: per constraint the term
// count, then per term the coefficient, the degree and the variables.
func (a *CompiledCircuitArtifact[F]) constraintsToBytes() ([]byte, error) {
	stream := []uint64{uint64(len(a.Constraints))}
	for _, c := range a.Constraints {
		stream = append(stream, uint64(c.NbTerms()))
		for _, t := range c.Terms() {
			stream = append(stream, t.Coeff().Uint64(), uint64(t.Degree()))
			for _, v := range t.Variables() {
				stream = append(stream, uint64(v))
			}
		}
	}
	var buf bytes.Buffer
	if err := ioutils.CompressAndWriteUints64(&buf, stream); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *CompiledCircuitArtifact[F]) constraintsFromBytes(data []byte) error {
	_, stream, err := ioutils.ReadAndDecompressUints64(bytes.NewReader(data))
	if err != nil {
		return err
	}
	pos := 0
	next := func() (uint64, error) {
		if pos >= len(stream) {
			return 0, errors.New("air: truncated constraint stream")
		}
		v := stream[pos]
		pos++
		return v, nil
	}
	n, err := next()
	if err != nil {
		return err
	}
	a.Constraints = make([]cs.Constraint[F], 0, n)
	for i := uint64(0); i < n; i++ {
		nbTerms, err := next()
		if err != nil {
			return err
		}
		terms := make([]cs.Term[F], 0, nbTerms)
		for j := uint64(0); j < nbTerms; j++ {
			coeff, err := next()
			if err != nil {
				return err
			}
			degree, err := next()
			if err != nil {
				return err
			}
			t := cs.ConstantTerm(field.Uint64[F](coeff))
			for k := uint64(0); k < degree; k++ {
				v, err := next()
				if err != nil {
					return err
				}
				t = t.Mul(cs.VariableTerm[F](cs.Variable(v)))
			}
			terms = append(terms, t)
		}
		a.Constraints = append(a.Constraints, cs.NewConstraint(terms...).Normalize())
	}
	return nil
}

// lookups flatten the same way; all lookup terms are at most linear, so each
// term is a (coefficient, variable) pair with the placeholder variable
// standing in for constants.
func (a *CompiledCircuitArtifact[F]) lookupsToBytes() ([]byte, error) {
	stream := []uint64{uint64(len(a.Lookups))}
	put := func(t cs.Term[F]) {
		v := uint64(cs.Placeholder())
		if t.Degree() == 1 {
			v = uint64(t.Variables()[0])
		}
		stream = append(stream, t.Coeff().Uint64(), v)
	}
	for _, q := range a.Lookups {
		put(q.Table)
		for _, in := range q.Inputs {
			put(in)
		}
	}
	var buf bytes.Buffer
	if err := ioutils.CompressAndWriteUints64(&buf, stream); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *CompiledCircuitArtifact[F]) lookupsFromBytes(data []byte) error {
	_, stream, err := ioutils.ReadAndDecompressUints64(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if len(stream) < 1 {
		return errors.New("air: truncated lookup stream")
	}
	n := stream[0]
	stream = stream[1:]
	const perQuery = 2 * (1 + cs.LookupTupleWidth)
	if uint64(len(stream)) != n*perQuery {
		return errors.New("air: truncated lookup stream")
	}
	get := func(i int) cs.Term[F] {
		coeff, v := stream[2*i], stream[2*i+1]
		if cs.Variable(v).IsPlaceholder() {
			return cs.ConstantTerm(field.Uint64[F](coeff))
		}
		return cs.ScaledVariableTerm(field.Uint64[F](coeff), cs.Variable(v))
	}
	a.Lookups = make([]cs.LookupQuery[F], n)
	for i := uint64(0); i < n; i++ {
		base := int(i) * (1 + cs.LookupTupleWidth)
		q := cs.LookupQuery[F]{Table: get(base)}
		for j := 0; j < cs.LookupTupleWidth; j++ {
			q.Inputs[j] = get(base + 1 + j)
		}
		a.Lookups[i] = q
	}
	return nil
}

func boolToWire(b cs.Boolean) wireBoolean {
	switch {
	case b.IsConstant() && b.ConstantValue():
		return wireBoolean{Kind: wireBoolTrue}
	case b.IsConstant():
		return wireBoolean{Kind: wireBoolFalse}
	case b.IsNegated():
		return wireBoolean{Kind: wireBoolNot, Var: uint32(b.Variable())}
	default:
		return wireBoolean{Kind: wireBoolIs, Var: uint32(b.Variable())}
	}
}

func boolFromWire(w wireBoolean) (cs.Boolean, error) {
	switch w.Kind {
	case wireBoolFalse:
		return cs.ConstantBool(false), nil
	case wireBoolTrue:
		return cs.ConstantBool(true), nil
	case wireBoolIs:
		return cs.BoolIs(cs.Variable(w.Var)), nil
	case wireBoolNot:
		return cs.BoolNot(cs.Variable(w.Var)), nil
	default:
		return cs.Boolean{}, fmt.Errorf("air: unknown boolean encoding %d", w.Kind)
	}
}

func linTermToWire[F field.Element[F]](t cs.Term[F]) wireLinTerm {
	w := wireLinTerm{Coeff: t.Coeff().Uint64(), Var: uint32(cs.Placeholder())}
	if t.Degree() == 1 {
		w.Var = uint32(t.Variables()[0])
	}
	return w
}

func linTermFromWire[F field.Element[F]](w wireLinTerm) cs.Term[F] {
	if cs.Variable(w.Var).IsPlaceholder() {
		return cs.ConstantTerm(field.Uint64[F](w.Coeff))
	}
	return cs.ScaledVariableTerm(field.Uint64[F](w.Coeff), cs.Variable(w.Var))
}

func (a *CompiledCircuitArtifact[F]) memoryToBytes() ([]byte, error) {
	mem := wireMemory{
		Accesses:   make([]wireAccess, len(a.Memory.Accesses)),
		Delegation: make([]wireDelegation, len(a.Memory.Delegation)),
	}
	vars := func(vs [2]cs.Variable) [2]uint32 { return [2]uint32{uint32(vs[0]), uint32(vs[1])} }
	for i, acc := range a.Memory.Accesses {
		mem.Accesses[i] = wireAccess{
			Address:        [2]wireLinTerm{linTermToWire(acc.Address[0]), linTermToWire(acc.Address[1])},
			IsRegister:     acc.IsRegister,
			IsWrite:        acc.IsWrite,
			LocalTimestamp: acc.LocalTimestamp,
			ReadValue:      vars(acc.ReadValue),
			Exec:           boolToWire(acc.Exec),
		}
		if acc.IsWrite {
			mem.Accesses[i].WriteValue = vars(acc.WriteValue)
		} else {
			mem.Accesses[i].WriteValue = [2]uint32{uint32(cs.Placeholder()), uint32(cs.Placeholder())}
		}
	}
	for i, req := range a.Memory.Delegation {
		mem.Delegation[i] = wireDelegation{
			Exec:          boolToWire(req.Exec),
			Type:          linTermToWire(req.Type),
			MemOffsetHigh: linTermToWire(req.MemOffsetHigh),
		}
	}
	if slot := a.Memory.LazyInit; slot != nil {
		mem.LazyInit = &wireLazyInit{
			Enable:            boolToWire(slot.Enable),
			Address:           vars(slot.Address),
			PrevAddress:       vars(slot.PrevAddress),
			InitValue:         vars(slot.InitValue),
			TeardownValue:     vars(slot.TeardownValue),
			TeardownTimestamp: vars(slot.TeardownTimestamp),
			Borrow:            boolToWire(slot.Borrow),
			DiffLow:           uint32(slot.DiffLow),
			DiffHigh:          uint32(slot.DiffHigh),
		}
	}
	em, err := encMode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := em.NewEncoder(&buf).Encode(mem); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *CompiledCircuitArtifact[F]) memoryFromBytes(data []byte) error {
	var mem wireMemory
	if err := cbor.NewDecoder(bytes.NewReader(data)).Decode(&mem); err != nil {
		return err
	}
	vars := func(vs [2]uint32) [2]cs.Variable { return [2]cs.Variable{cs.Variable(vs[0]), cs.Variable(vs[1])} }
	a.Memory.Accesses = make([]cs.ShuffleRamAccess[F], len(mem.Accesses))
	for i, acc := range mem.Accesses {
		exec, err := boolFromWire(acc.Exec)
		if err != nil {
			return err
		}
		out := cs.ShuffleRamAccess[F]{
			Address:        [2]cs.Term[F]{linTermFromWire[F](acc.Address[0]), linTermFromWire[F](acc.Address[1])},
			IsRegister:     acc.IsRegister,
			IsWrite:        acc.IsWrite,
			LocalTimestamp: acc.LocalTimestamp,
			ReadValue:      vars(acc.ReadValue),
			Exec:           exec,
		}
		if acc.IsWrite {
			out.WriteValue = vars(acc.WriteValue)
		} else {
			out.WriteValue = [2]cs.Variable{cs.Placeholder(), cs.Placeholder()}
		}
		a.Memory.Accesses[i] = out
	}
	a.Memory.Delegation = make([]cs.DelegationRequest[F], len(mem.Delegation))
	for i, req := range mem.Delegation {
		exec, err := boolFromWire(req.Exec)
		if err != nil {
			return err
		}
		a.Memory.Delegation[i] = cs.DelegationRequest[F]{
			Exec:          exec,
			Type:          linTermFromWire[F](req.Type),
			MemOffsetHigh: linTermFromWire[F](req.MemOffsetHigh),
		}
	}
	a.Memory.LazyInit = nil
	if mem.LazyInit != nil {
		enable, err := boolFromWire(mem.LazyInit.Enable)
		if err != nil {
			return err
		}
		borrow, err := boolFromWire(mem.LazyInit.Borrow)
		if err != nil {
			return err
		}
		a.Memory.LazyInit = &cs.LazyInitSlot{
			Enable:            enable,
			Address:           vars(mem.LazyInit.Address),
			PrevAddress:       vars(mem.LazyInit.PrevAddress),
			InitValue:         vars(mem.LazyInit.InitValue),
			TeardownValue:     vars(mem.LazyInit.TeardownValue),
			TeardownTimestamp: vars(mem.LazyInit.TeardownTimestamp),
			Borrow:            borrow,
			DiffLow:           cs.Variable(mem.LazyInit.DiffLow),
			DiffHigh:          cs.Variable(mem.LazyInit.DiffHigh),
		}
	}
	return nil
}
