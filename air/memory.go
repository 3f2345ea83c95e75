package air

import (
	"fmt"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/consensys/gnark-air/cs"
)

// LazyInitRecord is the witness-level view of one row's lazy-init/teardown
// slot: the address whose first chunk-local read observes InitValue, and the
// final value and write timestamp the next chunk must observe. Disabled
// records are padding and hold all-zero columns.
type LazyInitRecord struct {
	Enabled           bool
	Address           [2]uint64
	InitValue         [2]uint64
	TeardownValue     [2]uint64
	TeardownTimestamp [2]uint64
}

// AccessEvent is the witness-level view of one memory touch: the evaluated
// address, values and global timestamp of a ShuffleRamAccess on a solved
// row. Events of a chunk feed the reference multiset check below.
type AccessEvent struct {
	Timestamp  uint64
	IsWrite    bool
	IsRegister bool
	Address    uint64
	ReadValue  uint64
	WriteValue uint64
}

// LazyInitRecord evaluates the artifact's lazy-init slot on a solved row.
// The second return is false when the artifact has no slot.
func (a *CompiledCircuitArtifact[F]) LazyInitRecord(row *cs.Assignment[F]) (LazyInitRecord, bool) {
	slot := a.Memory.LazyInit
	if slot == nil {
		return LazyInitRecord{}, false
	}
	value := func(v cs.Variable) uint64 { return row.MustGet(v).Uint64() }
	pair := func(vs [2]cs.Variable) [2]uint64 { return [2]uint64{value(vs[0]), value(vs[1])} }
	return LazyInitRecord{
		Enabled:           cs.BooleanConstraint[F](slot.Enable).Evaluate(row.MustGet).IsOne(),
		Address:           pair(slot.Address),
		InitValue:         pair(slot.InitValue),
		TeardownValue:     pair(slot.TeardownValue),
		TeardownTimestamp: pair(slot.TeardownTimestamp),
	}, true
}

// AccessEvents evaluates every executed access record of a solved row.
// cycle numbers the row within its chunk; the global timestamp of an access
// is cycle·NumLocalTimestamps + its local slot.
func (a *CompiledCircuitArtifact[F]) AccessEvents(cycle int, row *cs.Assignment[F]) []AccessEvent {
	value := func(v cs.Variable) F { return row.MustGet(v) }
	events := make([]AccessEvent, 0, len(a.Memory.Accesses))
	for _, acc := range a.Memory.Accesses {
		if !cs.BooleanConstraint[F](acc.Exec).Evaluate(value).IsOne() {
			continue
		}
		ev := AccessEvent{
			Timestamp:  uint64(cycle)*cs.NumLocalTimestamps + uint64(acc.LocalTimestamp),
			IsWrite:    acc.IsWrite,
			IsRegister: acc.IsRegister,
			Address: acc.Address[0].AsConstraint().Evaluate(value).Uint64() +
				acc.Address[1].AsConstraint().Evaluate(value).Uint64()<<16,
			ReadValue: value(acc.ReadValue[0]).Uint64() + value(acc.ReadValue[1]).Uint64()<<16,
		}
		if acc.IsWrite {
			ev.WriteValue = value(acc.WriteValue[0]).Uint64() + value(acc.WriteValue[1]).Uint64()<<16
		}
		events = append(events, ev)
	}
	return events
}

func addrLess(a, b [2]uint64) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[0] < b[0]
}

// CheckSegmentOrdering verifies one segment of lazy-init records: addresses
// of enabled rows strictly increase (the in-circuit borrow gadget enforces
// the same, masked by the enable bit) and disabled rows hold pre-padded zero
// addresses.
func CheckSegmentOrdering(records []LazyInitRecord) error {
	var prev *LazyInitRecord
	for i := range records {
		r := &records[i]
		if !r.Enabled {
			if r.Address != [2]uint64{} {
				return fmt.Errorf("air: padding record %d holds a nonzero address", i)
			}
			continue
		}
		if prev != nil && !addrLess(prev.Address, r.Address) {
			return fmt.Errorf("air: lazy-init addresses not strictly increasing at record %d", i)
		}
		prev = r
	}
	return nil
}

// StitchSegments verifies the chunk boundary: the last enabled address of
// the previous segment must lie strictly below the first enabled address of
// the next. Both segments must individually pass CheckSegmentOrdering; their
// concatenation then strictly increases too.
func StitchSegments(prev, next []LazyInitRecord) error {
	var last *LazyInitRecord
	for i := range prev {
		if prev[i].Enabled {
			last = &prev[i]
		}
	}
	if last == nil {
		return nil
	}
	for i := range next {
		if !next[i].Enabled {
			continue
		}
		if !addrLess(last.Address, next[i].Address) {
			return fmt.Errorf("air: segment boundary: address %v does not increase over %v", next[i].Address, last.Address)
		}
		return nil
	}
	return nil
}

// CheckShuffleConsistency replays a chunk's access events against its
// lazy-init records: the very first read of an address must observe the
// record's init value, every later read must observe the latest earlier
// write, and the final value must match the record's teardown. It is the
// reference semantics of the randomized multiset argument the prover runs,
// stated as an explicit replay so tests can validate witness traces.
func CheckShuffleConsistency(events []AccessEvent, init []LazyInitRecord) error {
	type key struct {
		register bool
		address  uint64
	}
	current := make(map[key]uint64)
	teardown := make(map[key]LazyInitRecord)
	for i, r := range init {
		if !r.Enabled {
			continue
		}
		k := key{address: r.Address[0] + r.Address[1]<<16}
		if _, ok := teardown[k]; ok {
			return fmt.Errorf("air: duplicate lazy-init record %d", i)
		}
		current[k] = r.InitValue[0] + r.InitValue[1]<<16
		teardown[k] = r
	}

	sorted := make([]AccessEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	for _, ev := range sorted {
		k := key{register: ev.IsRegister, address: ev.Address}
		val, ok := current[k]
		if !ok {
			if !ev.IsRegister {
				return fmt.Errorf("air: access at t=%d touches address %#x with no lazy-init record", ev.Timestamp, ev.Address)
			}
			// registers initialize to zero; their sub-space needs no records
			val = 0
		}
		if ev.ReadValue != val {
			return fmt.Errorf("air: read at t=%d observes %#x, last write was %#x", ev.Timestamp, ev.ReadValue, val)
		}
		if ev.IsWrite {
			current[k] = ev.WriteValue
		} else {
			current[k] = val
		}
	}

	// iterate in address order so a failing chunk always reports the same
	// teardown mismatch
	keys := maps.Keys(teardown)
	sort.Slice(keys, func(i, j int) bool { return keys[i].address < keys[j].address })
	for _, k := range keys {
		r := teardown[k]
		want := r.TeardownValue[0] + r.TeardownValue[1]<<16
		if current[k] != want {
			return fmt.Errorf("air: teardown of %#x records %#x, final value is %#x", k.address, want, current[k])
		}
	}
	return nil
}
