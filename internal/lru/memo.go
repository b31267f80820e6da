package lru

import (
	"cmp"
	"slices"
	"sync"
)

// Memo memoizes values derived from their key, with a soft size limit:
// crossing it drops the stalest quarter of entries in one batch. The
// approximate recency (a map plus an access tick, no intrusive list)
// keeps hits allocation-free, and the memoized values are cheap to
// rebuild after an over-eager eviction.
//
// Memo is safe for concurrent use and must not be copied after
// creation.
type Memo[K comparable, V any] struct {
	mu        sync.Mutex
	values    map[K]V
	atime     map[K]int64
	softLimit int
	tick      int64
}

// NewMemo creates a memo with the given soft limit.
// A softLimit of 0 means unlimited.
func NewMemo[K comparable, V any](softLimit int) *Memo[K, V] {
	return &Memo[K, V]{
		values:    make(map[K]V),
		atime:     make(map[K]int64),
		softLimit: softLimit,
	}
}

// GetOrCreate returns the memoized value for the key, calling create
// on first visit. create runs under the memo's lock, so concurrent
// callers never build the same value twice.
func (m *Memo[K, V]) GetOrCreate(key K, create func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tick++
	if v, ok := m.values[key]; ok {
		m.atime[key] = m.tick
		return v
	}

	v := create()
	m.values[key] = v
	m.atime[key] = m.tick

	if m.softLimit > 0 && len(m.values) > m.softLimit {
		m.evictStale()
	}
	return v
}

// Clear removes all entries.
func (m *Memo[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[K]V)
	m.atime = make(map[K]int64)
	m.tick = 0
}

// Len returns the number of memoized entries.
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// evictStale drops the least recently used entries until comfortably
// under the soft limit. Caller must hold m.mu.
func (m *Memo[K, V]) evictStale() {
	target := m.softLimit * 3 / 4
	if target < 1 {
		target = 1
	}
	drop := len(m.values) - target
	if drop <= 0 {
		return
	}

	keys := make([]K, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b K) int {
		return cmp.Compare(m.atime[a], m.atime[b])
	})
	for _, k := range keys[:drop] {
		delete(m.values, k)
		delete(m.atime, k)
	}
}
