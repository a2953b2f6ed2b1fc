package params

import "sync/atomic"

// Store holds the current parameter Set as an immutable snapshot.
// Writers publish a whole new Set; readers never observe a half-written one.
type Store struct {
	cur atomic.Pointer[Set]
}

// NewStore creates a store seeded with initial (clamped).
func NewStore(initial Set) *Store {
	s := &Store{}
	c := initial.Clamp()
	s.cur.Store(&c)
	return s
}

// Snapshot returns the current parameter values.
func (s *Store) Snapshot() Set {
	return *s.cur.Load()
}

// Update applies fn to a copy of the current Set, clamps it and publishes it.
// Concurrent updates are retried so none is lost.
func (s *Store) Update(fn func(*Set)) Set {
	for {
		old := s.cur.Load()
		next := *old
		fn(&next)
		next = next.Clamp()
		if s.cur.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// Replace publishes set (clamped) unconditionally.
func (s *Store) Replace(set Set) Set {
	c := set.Clamp()
	s.cur.Store(&c)
	return c
}
