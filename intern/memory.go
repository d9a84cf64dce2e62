// Package intern provides a generic deduplicating store that maps values
// to dense sequential identifiers.
//
// Values that compare equal under the caller-supplied key function always
// receive the same ID. IDs start at 0 and are assigned in first-seen order,
// so they can be used directly as slice indices on the consumer side.
package intern

import (
	"fmt"
	"sync"
)

// ID identifies an interned value within one Memory instance.
type ID uint32

// Memory is a value-to-ID bimap with deduplication.
//
// Go slices and structs containing slices are not comparable, so the store
// canonicalizes values through a key function instead of using them as map
// keys directly. It is safe for concurrent use: lookups take a read lock,
// first-time insertions take the write lock.
type Memory[E any] struct {
	mu    sync.RWMutex
	keyFn func(E) string
	ids   map[string]ID
	elems []E
}

// NewMemory creates an empty store. keyFn must return the same key for
// values that should share an ID, and different keys otherwise.
func NewMemory[E any](keyFn func(E) string) *Memory[E] {
	return &Memory[E]{
		keyFn: keyFn,
		ids:   make(map[string]ID),
	}
}

// GetUID returns the ID for e, interning it first if it was never seen.
func (m *Memory[E]) GetUID(e E) ID {
	key := m.keyFn(e)

	m.mu.RLock()
	id, ok := m.ids[key]
	m.mu.RUnlock()
	if ok {
		return id
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another writer may have interned it while we upgraded the lock.
	if id, ok := m.ids[key]; ok {
		return id
	}
	id = ID(len(m.elems))
	m.ids[key] = id
	m.elems = append(m.elems, e)
	return id
}

// GetElm returns the value for a previously issued ID.
//
// IDs only ever come out of GetUID, so an unknown ID is a programming
// error and panics rather than returning an error.
func (m *Memory[E]) GetElm(id ID) E {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.elems) {
		panic(fmt.Sprintf("intern: ID %d was never issued (store holds %d values)", id, len(m.elems)))
	}
	return m.elems[id]
}

// Len returns the number of distinct values interned so far.
func (m *Memory[E]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.elems)
}
