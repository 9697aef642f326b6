// Package registry provides host-owned slot tables. Plugins and nodes cross
// the host boundary as opaque Handles into a Table instead of pointers; moving
// ownership out of the host is a Take, never a shared reference.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleHandle is returned when a handle does not name a live entry.
var ErrStaleHandle = errors.New("registry: stale handle")

// Handle names one entry of a Table. The zero Handle is never valid.
//
// The low 32 bits are the slot index plus one; the high 32 bits are the slot
// generation, bumped every time the slot is vacated. A Handle kept after its
// entry was taken therefore misses instead of aliasing a newer entry.
type Handle uint64

func newHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index+1))
}

func (h Handle) index() int {
	return int(uint32(h)) - 1
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index(), h.generation())
}

type entry[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Table is a generation-checked slot table.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Ownership: values are returned by copy; pointer values stay shared.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []entry[T]
	free  []int
	live  int
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v in a free slot and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = len(t.slots)
		t.slots = append(t.slots, entry[T]{})
	}
	e := &t.slots[idx]
	e.value = v
	e.live = true
	t.live++
	return newHandle(idx, e.gen)
}

// lookup returns the live entry for h. t.mu must be held.
func (t *Table[T]) lookup(h Handle) (*entry[T], bool) {
	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, false
	}
	e := &t.slots[idx]
	if !e.live || e.gen != h.generation() {
		return nil, false
	}
	return e, true
}

// Get returns the value behind h.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.lookup(h); ok {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Take removes the entry behind h and returns its value. Every copy of h is
// stale afterwards.
func (t *Table[T]) Take(h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e, ok := t.lookup(h)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	v := e.value
	e.value = zero
	e.live = false
	e.gen++
	t.free = append(t.free, h.index())
	t.live--
	return v, nil
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Range calls fn for each live entry in slot order until fn returns false.
// fn must not call back into the table.
func (t *Table[T]) Range(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.slots {
		e := &t.slots[i]
		if !e.live {
			continue
		}
		if !fn(newHandle(i, e.gen), e.value) {
			return
		}
	}
}
