package base

import "sync"

// Store is a reader/writer-locked map keyed by one of the hash kinds (§4.1).
// The zero value is not usable; construct with newStore. It is the Go
// generic rendition of the original's MemoryStore<HashT, ValueT> template -
// the teacher never reaches for a concurrent-map library even where one
// would fit (see keyValStore.go), so a plain RWMutex-guarded map is the
// idiomatic choice here too.
type Store[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func newStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{m: make(map[K]V)}
}

// Get takes the shared lock and, if key exists, invokes reader with a
// read-only view of the value. reader must be cheap: it runs under the
// shared lock. Returns whether key existed.
func (s *Store[K, V]) Get(key K, reader func(V)) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return false
	}
	if reader != nil {
		reader(v)
	}
	return true
}

// Lookup is a convenience wrapper around Get for the common case of just
// wanting a copy of the value.
func (s *Store[K, V]) Lookup(key K) (V, bool) {
	var out V
	found := s.Get(key, func(v V) { out = v })
	return out, found
}

// Set unconditionally overwrites key's value under the exclusive lock.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// SetIfNew inserts factory() under the exclusive lock only if key is
// absent. Returns the stored value (existing or newly inserted) and
// whether it was newly inserted.
func (s *Store[K, V]) SetIfNew(key K, factory func() V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok {
		return v, false
	}
	v := factory()
	s.m[key] = v
	return v, true
}

// Modify takes the exclusive lock and, if key exists, invokes mutator with
// a pointer to the stored value so it can be updated in place. Returns
// whether key existed.
func (s *Store[K, V]) Modify(key K, mutator func(*V)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return false
	}
	mutator(&v)
	s.m[key] = v
	return true
}

// ModifyMany runs batch under one exclusive-lock critical section, giving
// it direct access to the backing map. Used for the "insert if new AND
// return a reference to the stored record" compound operation spec.md §4.1
// requires be atomic (see content-store insertion in eval.go).
func (s *Store[K, V]) ModifyMany(batch func(m map[K]V)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch(s.m)
}

// ReadMany runs batch under one shared-lock critical section.
func (s *Store[K, V]) ReadMany(batch func(m map[K]V)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch(s.m)
}

// Len returns the current number of stored entries.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
