// Package circuitdefer collects callbacks to run at circuit finalization.
//
// Gadgets that accumulate state during construction (lookup-table drivers,
// the optimization context) register a callback here; the layout compiler
// drains the queue exactly once right before materializing invariants.
package circuitdefer

import (
	"github.com/consensys/gnark-air/internal/kvstore"
)

type deferKey struct{}

// Put stores a deferred function cb for later retrieval. Functions are
// retrieved in the order they were added (FIFO).
func Put[T any](builder any, cb T) {
	// generics for type safety while avoiding an import cycle with cs.
	kv, ok := builder.(kvstore.Store)
	if !ok {
		panic("builder does not implement kvstore.Store")
	}
	val := kv.GetKeyValue(deferKey{})
	var deferred []T
	if val != nil {
		var ok bool
		deferred, ok = val.([]T)
		if !ok {
			panic("stored deferred functions not of expected type")
		}
	}
	deferred = append(deferred, cb)
	kv.SetKeyValue(deferKey{}, deferred)
}

// GetAll retrieves all deferred functions of type T, in FIFO order.
//
// Functions are not removed from the store, and a deferred function may
// defer further functions; callers draining the queue should re-invoke
// GetAll each iteration to pick those up.
func GetAll[T any](builder any) []T {
	kv, ok := builder.(kvstore.Store)
	if !ok {
		panic("builder does not implement kvstore.Store")
	}
	val := kv.GetKeyValue(deferKey{})
	if val == nil {
		return nil
	}
	deferred, ok := val.([]T)
	if !ok {
		panic("stored deferred functions not of expected type")
	}
	return deferred
}
