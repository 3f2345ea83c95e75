package cs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/consensys/gnark-air/field"
)

// LookupTupleWidth is the common width of every lookup row. Narrower tables
// pad with zero columns so that all queries share one layout.
const LookupTupleWidth = 3

// TableType identifies a fixed lookup table. Tables are externally defined;
// the layout compiler references them by id when it converts range-check
// invariants and opcode-validity checks into lookups, and the witness
// checker resolves them through the table registry.
type TableType uint8

const (
	// TableZeroEntry holds the single all-zero row. Padding rows, whose
	// argument columns all evaluate to zero, land here.
	TableZeroEntry TableType = iota
	// TableRangeCheck8x8 holds every pair (a, b) with a, b < 2^8. Two 8-bit
	// range checks batch into one query row.
	TableRangeCheck8x8
	// TableRangeCheck16 holds every single value below 2^16.
	TableRangeCheck16
	// TableXor holds (a, b, a^b) for all byte pairs.
	TableXor
	// TableAnd holds (a, b, a&b) for all byte pairs.
	TableAnd
	// TableOr holds (a, b, a|b) for all byte pairs.
	TableOr
)

// TableConstant returns the table id as a constant term, for queries whose
// table is fixed at construction time.
func TableConstant[F field.Element[F]](t TableType) Term[F] {
	return UintTerm[F](uint64(t))
}

// LookupQuery is one recorded lookup: the evaluated input tuple must be a
// row of the table the evaluated id designates. The id is itself a term so
// that mutually-exclusive opcodes can select among tables at witness time.
type LookupQuery[F field.Element[F]] struct {
	Table  Term[F]
	Inputs [LookupTupleWidth]Term[F]
}

// TableDef describes a registered table: its shape and a membership test.
// Contents are never materialized; the membership test is the table.
type TableDef struct {
	Name  string
	Arity int // meaningful tuple columns, the rest must be zero
	Size  uint64
	// Contains reports whether the tuple is a row of the table.
	Contains func(tuple [LookupTupleWidth]uint64) bool
}

var (
	tableRegistry  = make(map[TableType]TableDef)
	tableRegistryM sync.RWMutex
)

// RegisterTable registers a table definition in the global registry. Ids
// must be unique; registering one twice panics.
func RegisterTable(id TableType, def TableDef) {
	tableRegistryM.Lock()
	defer tableRegistryM.Unlock()
	if existing, ok := tableRegistry[id]; ok {
		panic(fmt.Sprintf("cs: table id %d already registered as %q", id, existing.Name))
	}
	if def.Arity < 0 || def.Arity > LookupTupleWidth {
		panic(fmt.Sprintf("cs: table %q has arity %d", def.Name, def.Arity))
	}
	tableRegistry[id] = def
}

// GetTable resolves a registered table definition.
func GetTable(id TableType) (TableDef, bool) {
	tableRegistryM.RLock()
	defer tableRegistryM.RUnlock()
	def, ok := tableRegistry[id]
	return def, ok
}

// TableEntry pairs a registered table with its id.
type TableEntry struct {
	ID  TableType
	Def TableDef
}

// RegisteredTables snapshots the registry, sorted by id. The layout compiler
// records the snapshot in the artifact, so registration must be done before
// compiling.
func RegisteredTables() []TableEntry {
	tableRegistryM.RLock()
	defer tableRegistryM.RUnlock()
	entries := make([]TableEntry, 0, len(tableRegistry))
	for id, def := range tableRegistry {
		entries = append(entries, TableEntry{ID: id, Def: def})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

func init() {
	RegisterTable(TableZeroEntry, TableDef{
		Name:  "zero-entry",
		Arity: 0,
		Size:  1,
		Contains: func(tuple [LookupTupleWidth]uint64) bool {
			return tuple == [LookupTupleWidth]uint64{}
		},
	})
	RegisterTable(TableRangeCheck8x8, TableDef{
		Name:  "range-check-8x8",
		Arity: 2,
		Size:  1 << 16,
		Contains: func(tuple [LookupTupleWidth]uint64) bool {
			return tuple[0] < 1<<8 && tuple[1] < 1<<8 && tuple[2] == 0
		},
	})
	RegisterTable(TableRangeCheck16, TableDef{
		Name:  "range-check-16",
		Arity: 1,
		Size:  1 << 16,
		Contains: func(tuple [LookupTupleWidth]uint64) bool {
			return tuple[0] < 1<<16 && tuple[1] == 0 && tuple[2] == 0
		},
	})
	RegisterTable(TableXor, byteOpTable("xor", func(a, b uint64) uint64 { return a ^ b }))
	RegisterTable(TableAnd, byteOpTable("and", func(a, b uint64) uint64 { return a & b }))
	RegisterTable(TableOr, byteOpTable("or", func(a, b uint64) uint64 { return a | b }))
}

func byteOpTable(name string, op func(a, b uint64) uint64) TableDef {
	return TableDef{
		Name:  name,
		Arity: 3,
		Size:  1 << 16,
		Contains: func(tuple [LookupTupleWidth]uint64) bool {
			return tuple[0] < 1<<8 && tuple[1] < 1<<8 && tuple[2] == op(tuple[0], tuple[1])
		},
	}
}

// ByteOpOutput evaluates the bitwise table op for witness closures. Panics
// on an id that is not one of the byte-op tables.
func ByteOpOutput(id TableType, a, b uint64) uint64 {
	switch id {
	case TableXor:
		return a ^ b
	case TableAnd:
		return a & b
	case TableOr:
		return a | b
	default:
		panic(fmt.Sprintf("cs: table %d is not a byte op", id))
	}
}
