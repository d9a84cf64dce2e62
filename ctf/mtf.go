package ctf

import (
	"github.com/pkg/errors"
)

// mtfSlots is the capacity of a move-to-front string table. Codes are
// 5-bit; code 31 is reserved to announce a string not in the table.
const (
	mtfSlots    = 31
	mtfMissCode = 31
)

// mtfMap is a move-to-front table mirroring the producer's string
// compression state: recently used strings sit near the front and are
// referenced by their index, everything else is written out in full and
// pushed to the front, evicting the oldest entry when the table is full.
//
// Entries are dense: the used slots always form a prefix.
type mtfMap[T any] struct {
	keys []string
	vals []T
}

func newMtfMap[T any]() *mtfMap[T] {
	return &mtfMap[T]{
		keys: make([]string, 0, mtfSlots),
		vals: make([]T, 0, mtfSlots),
	}
}

// get returns the entry at a hit code.
func (m *mtfMap[T]) get(idx int) (string, T, error) {
	if idx >= len(m.keys) {
		var zero T
		return "", zero, errors.Errorf("string table has no entry at index %d (%d entries)", idx, len(m.keys))
	}
	return m.keys[idx], m.vals[idx], nil
}

// moveToFront moves the entry at idx to the front, shifting the entries
// before it back by one.
func (m *mtfMap[T]) moveToFront(idx int) {
	if idx == 0 {
		return
	}
	key, val := m.keys[idx], m.vals[idx]
	copy(m.keys[1:idx+1], m.keys[:idx])
	copy(m.vals[1:idx+1], m.vals[:idx])
	m.keys[0], m.vals[0] = key, val
}

// evictLast removes and returns the last entry if the table is full.
// The producer does the same before inserting a new string, so eviction
// must happen before pushFront to stay in sync.
func (m *mtfMap[T]) evictLast() (T, bool) {
	var zero T
	if len(m.keys) < mtfSlots {
		return zero, false
	}
	last := len(m.keys) - 1
	val := m.vals[last]
	m.keys = m.keys[:last]
	m.vals = m.vals[:last]
	return val, true
}

// pushFront inserts a new entry at the front. The caller must have made
// room with evictLast when the table was full.
func (m *mtfMap[T]) pushFront(key string, val T) {
	m.keys = append(m.keys, "")
	var zero T
	m.vals = append(m.vals, zero)
	copy(m.keys[1:], m.keys)
	copy(m.vals[1:], m.vals)
	m.keys[0], m.vals[0] = key, val
}
