// Package kvstore defines the builder-scoped value store.
//
// Packages that keep per-builder singletons (the deferred-callback queue,
// gadget dedup caches, lookup-table drivers) stash them here instead of in
// package globals, so two builders alive in the same process never share
// state. Keys are expected to be package-scoped sentinel types; the store is
// not synchronized, matching the single-goroutine builder contract.
package kvstore

type Store interface {
	SetKeyValue(key, value any)
	GetKeyValue(key any) (value any)
}

type store map[any]any

func New() Store {
	return make(store)
}

func (s store) SetKeyValue(key, value any) {
	s[key] = value
}

func (s store) GetKeyValue(key any) any {
	return s[key]
}
