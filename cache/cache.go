// Package cache implements the bounded GPU resource cache at the heart of
// the tile streaming core: a key→resource store with a byte budget,
// least-recently-touched eviction and per-frame pinning.
//
// The cache is the only shared mutable structure between the retrieval
// machinery and the render loop. Reads are thread-safe; all mutations
// (Put, Remove, Clear, SetFrame) are performed by the single render
// thread that owns GPU state, which is what allows resources to carry
// live GPU handles without per-handle locking.
package cache

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/globe"
	"github.com/gogpu/globe/internal/lru"
	"github.com/gogpu/globe/resource"
)

// Cache errors.
var (
	// ErrCacheOverflow is returned when a resource cannot fit in the
	// budget, either because it is larger than the whole budget or
	// because every resident entry is pinned in the current frame.
	// The caller renders without that resource.
	ErrCacheOverflow = errors.New("cache: resource does not fit in budget")

	// ErrCacheClosed is returned when operating on a closed cache.
	ErrCacheClosed = errors.New("cache: cache is closed")
)

// Default cache limits.
const (
	// DefaultBudgetMB is the default GPU memory budget (256 MB).
	DefaultBudgetMB = 256

	// MinBudgetMB is the minimum allowed budget (16 MB).
	MinBudgetMB = 16
)

// Stats contains cache usage statistics.
type Stats struct {
	// BudgetBytes is the configured byte budget.
	BudgetBytes uint64

	// UsedBytes is the currently resident byte size.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// EntryCount is the number of resident entries.
	EntryCount int

	// Hits and Misses count Get outcomes.
	Hits   uint64
	Misses uint64

	// Evictions is the total number of entries evicted under pressure.
	Evictions uint64

	// Utilization is the fraction of budget used (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of cache stats.
func (s Stats) String() string {
	return fmt.Sprintf("Cache[%.1f%% used, %d/%d MB, %d entries, %d evictions]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.EntryCount,
		s.Evictions)
}

// entry tracks one resident resource with its LRU position and the frame
// it was last touched in.
type entry struct {
	key              resource.Key
	res              resource.Resource
	sizeBytes        uint64
	lastTouchedFrame uint64
	node             *lru.Node[resource.Key]
}

// Config holds configuration for creating a Cache.
type Config struct {
	// BudgetMB is the byte budget in megabytes.
	// Defaults to DefaultBudgetMB if below MinBudgetMB.
	BudgetMB int
}

// Cache is a byte-budgeted key→resource store with LRU eviction.
//
// Invariants after every mutating call returns:
//   - total resident byte size <= budget (strong post-condition)
//   - at most one entry per key; Put on an existing key atomically
//     replaces it, with no intermediate state observable by readers
//
// Eviction removes least-recently-touched entries first, excluding
// entries touched in the current frame so nothing about to be drawn is
// evicted under it.
type Cache struct {
	mu sync.Mutex

	entries map[resource.Key]*entry
	order   *lru.List[resource.Key]

	budgetBytes uint64
	usedBytes   uint64

	frame     uint64 // current frame number, advanced by SetFrame
	evictions uint64
	closed    bool

	// Statistics (atomic for lock-free reads on the hot path)
	hits   atomic.Uint64
	misses atomic.Uint64

	// keyCounter issues generated keys, monotonically.
	keyCounter atomic.Uint64
}

// New creates a cache with the given configuration.
func New(config Config) *Cache {
	budgetMB := config.BudgetMB
	if budgetMB < MinBudgetMB {
		budgetMB = DefaultBudgetMB
	}

	//nolint:gosec // G115: budgetMB is bounded by MinBudgetMB minimum
	return &Cache{
		entries:     make(map[resource.Key]*entry),
		order:       lru.NewList[resource.Key](),
		budgetBytes: uint64(budgetMB) * 1024 * 1024,
	}
}

// Get returns the resource for the key, or (nil, false) if absent.
// A hit marks the entry as touched in the current frame and moves it to
// the front of the LRU order. Get never blocks on retrieval.
func (c *Cache) Get(key resource.Key) (resource.Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.closed {
		c.misses.Add(1)
		return nil, false
	}

	e.lastTouchedFrame = c.frame
	c.order.MoveToFront(e.node)
	c.hits.Add(1)
	return e.res, true
}

// Put inserts or replaces the resource for the key. Replacing releases
// the old resource. If the insertion would exceed the byte budget,
// least-recently-touched entries not pinned in the current frame are
// evicted until it fits; if it still cannot fit, nothing is inserted and
// ErrCacheOverflow is returned.
//
// Render-thread only. The cache takes ownership of res on success.
func (c *Cache) Put(key resource.Key, res resource.Resource, sizeBytes uint64) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}

	if sizeBytes > c.budgetBytes {
		c.mu.Unlock()
		globe.Logger().Warn("cache: resource exceeds entire budget",
			"key", key, "size", sizeBytes, "budget", c.budgetBytes)
		return fmt.Errorf("%w: %d bytes against budget %d", ErrCacheOverflow, sizeBytes, c.budgetBytes)
	}

	// Resources released under pressure; actual Release happens after
	// the lock is dropped.
	var released []resource.Resource

	// Replace in place: the key keeps its LRU node, the old resource
	// goes out atomically with respect to readers. A replacement that
	// grows the entry must still fit after evicting unpinned entries;
	// checked before mutating so a rejection leaves the old resource
	// resident and untouched.
	if e, ok := c.entries[key]; ok {
		needed := c.usedBytes - e.sizeBytes + sizeBytes
		if needed > c.budgetBytes && needed-c.evictableBytesLocked(key) > c.budgetBytes {
			c.mu.Unlock()
			globe.Logger().Warn("cache: all entries pinned, replacement rejected",
				"key", key, "size", sizeBytes)
			return fmt.Errorf("%w: %d bytes, all resident entries pinned", ErrCacheOverflow, sizeBytes)
		}

		released = append(released, e.res)
		c.usedBytes -= e.sizeBytes
		e.res = res
		e.sizeBytes = sizeBytes
		e.lastTouchedFrame = c.frame
		c.usedBytes += sizeBytes
		c.order.MoveToFront(e.node)

		released = append(released, c.evictLocked()...)
		c.mu.Unlock()
		releaseAll(released)
		return nil
	}

	// Make room before inserting so the budget invariant holds at
	// every return.
	for c.usedBytes+sizeBytes > c.budgetBytes {
		victim, ok := c.order.RemoveOldestFunc(func(k resource.Key) bool {
			return c.entries[k].lastTouchedFrame != c.frame
		})
		if !ok {
			// Everything resident is pinned in this frame.
			c.mu.Unlock()
			releaseAll(released)
			globe.Logger().Warn("cache: all entries pinned, insertion rejected",
				"key", key, "size", sizeBytes)
			return fmt.Errorf("%w: %d bytes, all resident entries pinned", ErrCacheOverflow, sizeBytes)
		}
		e := c.entries[victim]
		delete(c.entries, victim)
		c.usedBytes -= e.sizeBytes
		c.evictions++
		released = append(released, e.res)
		globe.Logger().Debug("cache: evicted", "key", victim, "size", e.sizeBytes)
	}

	e := &entry{
		key:              key,
		res:              res,
		sizeBytes:        sizeBytes,
		lastTouchedFrame: c.frame,
		node:             c.order.PushFront(key),
	}
	c.entries[key] = e
	c.usedBytes += sizeBytes

	c.mu.Unlock()
	releaseAll(released)
	return nil
}

// evictableBytesLocked sums the sizes of entries that eviction may
// remove: not pinned in the current frame and not the entry being
// replaced. Caller must hold c.mu.
func (c *Cache) evictableBytesLocked(replacing resource.Key) uint64 {
	var n uint64
	for k, e := range c.entries {
		if k != replacing && e.lastTouchedFrame != c.frame {
			n += e.sizeBytes
		}
	}
	return n
}

// evictLocked evicts unpinned LRU entries until usage is within budget.
// Used after an in-place replacement grows an entry. Caller must hold
// c.mu; returns the displaced resources for release outside the lock.
func (c *Cache) evictLocked() []resource.Resource {
	var released []resource.Resource
	for c.usedBytes > c.budgetBytes {
		victim, ok := c.order.RemoveOldestFunc(func(k resource.Key) bool {
			return c.entries[k].lastTouchedFrame != c.frame
		})
		if !ok {
			break
		}
		e := c.entries[victim]
		delete(c.entries, victim)
		c.usedBytes -= e.sizeBytes
		c.evictions++
		released = append(released, e.res)
	}
	return released
}

// Remove releases the entry for the key, if present.
// Render-thread only. Returns true if an entry was removed.
func (c *Cache) Remove(key resource.Key) bool {
	c.mu.Lock()

	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}

	c.order.Remove(e.node)
	delete(c.entries, key)
	c.usedBytes -= e.sizeBytes
	res := e.res
	c.mu.Unlock()

	res.Release()
	return true
}

// Clear releases every entry. Used on pyramid reset or explicit user
// eviction. Render-thread only.
func (c *Cache) Clear() {
	c.mu.Lock()
	released := make([]resource.Resource, 0, len(c.entries))
	for _, e := range c.entries {
		released = append(released, e.res)
	}
	c.entries = make(map[resource.Key]*entry)
	c.order.Clear()
	c.usedBytes = 0
	c.mu.Unlock()

	releaseAll(released)
	globe.Logger().Info("cache: cleared", "released", len(released))
}

// Close clears the cache and rejects further insertions.
// Render-thread only. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Clear()
}

// GenerateKey issues a fresh unique key for resources without a natural
// deterministic identity (composited mesh buffers and the like). Keys
// are issued monotonically and never reused within a process.
func (c *Cache) GenerateKey() resource.Key {
	n := c.keyCounter.Add(1)
	return resource.Key("gen/" + strconv.FormatUint(n, 10))
}

// SetFrame advances the cache's frame counter. The render loop calls
// this once at the start of every frame; entries touched in frame n are
// exempt from eviction until frame n+1.
func (c *Cache) SetFrame(frame uint64) {
	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()
}

// Frame returns the current frame number.
func (c *Cache) Frame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Contains reports whether the key is resident, without touching
// recency.
func (c *Cache) Contains(key resource.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// UsedBytes returns the currently resident byte size.
func (c *Cache) UsedBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// BudgetBytes returns the configured byte budget.
func (c *Cache) BudgetBytes() uint64 { return c.budgetBytes }

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns current usage statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	used := c.usedBytes
	count := len(c.entries)
	evictions := c.evictions
	c.mu.Unlock()

	var utilization float64
	if c.budgetBytes > 0 {
		utilization = float64(used) / float64(c.budgetBytes)
	}

	var available uint64
	if used < c.budgetBytes {
		available = c.budgetBytes - used
	}

	return Stats{
		BudgetBytes:    c.budgetBytes,
		UsedBytes:      used,
		AvailableBytes: available,
		EntryCount:     count,
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Evictions:      evictions,
		Utilization:    utilization,
	}
}

func releaseAll(resources []resource.Resource) {
	for _, r := range resources {
		r.Release()
	}
}
