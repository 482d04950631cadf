package cache

import (
	"fmt"

	"github.com/gogpu/deferred"
)

// LRU is a bounded cache of immutable resources. Entries are constructed
// on a miss by the bound Loader and disposed, least recently used first,
// when the resident capacity exceeds the configured maximum.
//
// A single entry larger than the maximum is admitted; it evicts everything
// else and is the first candidate on the next insertion.
//
// LRU is not safe for concurrent use. Stats may be called from any
// goroutine.
type LRU[K comparable, V any] struct {
	name    string
	loader  Loader[K, V]
	max     int64
	entries map[K]*node[*lruEntry[K, V]]
	order   recencyList[*lruEntry[K, V]]
	used    int64
	closed  bool
	stats   counters
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// NewLRU creates an empty cache. It panics if loader is nil or the
// maximum capacity is negative.
func NewLRU[K comparable, V any](loader Loader[K, V], cfg Config) *LRU[K, V] {
	if loader == nil {
		panic("cache: NewLRU with nil loader")
	}
	if cfg.MaximumCapacity < 0 {
		panic(fmt.Sprintf("cache: negative capacity %d", cfg.MaximumCapacity))
	}
	return &LRU[K, V]{
		name:    cfg.Name,
		loader:  loader,
		max:     cfg.MaximumCapacity,
		entries: make(map[K]*node[*lruEntry[K, V]]),
	}
}

// Get returns the resident resource for key, constructing it on a miss.
// Two calls without an intervening eviction return the same resource.
func (c *LRU[K, V]) Get(key K) (V, error) {
	var zero V
	if c.closed {
		return zero, ErrClosed
	}

	if n, ok := c.entries[key]; ok {
		c.order.MoveToFront(n)
		c.stats.hits.Add(1)
		return n.value.value, nil
	}

	c.stats.misses.Add(1)
	value, err := c.loader.Load(key)
	if err != nil {
		return zero, &LoadError{Cache: c.name, Key: key, Err: err}
	}
	size := c.loader.SizeOf(key, value)
	if size < 0 {
		panic(fmt.Sprintf("cache: %s: negative size %d for %v", c.name, size, key))
	}

	e := &lruEntry[K, V]{key: key, value: value, size: size}
	n := c.order.PushFront(e)
	c.entries[key] = n
	c.used += size
	c.stats.entries.Add(1)
	c.stats.used.Store(c.used)
	deferred.Logger().Debug("cache: loaded",
		"cache", c.name, "key", key, "size", size, "used", c.used, "max", c.max)

	c.evict(n)
	return value, nil
}

// Contains reports whether key is resident without touching its recency.
func (c *LRU[K, V]) Contains(key K) bool {
	_, ok := c.entries[key]
	return ok
}

// Keys returns the resident keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, c.order.Len())
	for n := c.order.Front(); n != nil; n = n.Older() {
		keys = append(keys, n.value.key)
	}
	return keys
}

// Size returns the resident capacity in loader units.
func (c *LRU[K, V]) Size() int64 {
	return c.used
}

// Len returns the number of resident entries.
func (c *LRU[K, V]) Len() int {
	return len(c.entries)
}

// MaximumCapacity returns the configured budget.
func (c *LRU[K, V]) MaximumCapacity() int64 {
	return c.max
}

// Remove disposes the entry for key. It reports whether an entry was
// resident.
func (c *LRU[K, V]) Remove(key K) bool {
	n, ok := c.entries[key]
	if !ok {
		return false
	}
	c.drop(n)
	return true
}

// Stats returns a snapshot of the cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	return c.stats.snapshot(c.max)
}

// Close disposes every resident entry. Further Gets fail with ErrClosed.
func (c *LRU[K, V]) Close() {
	if c.closed {
		return
	}
	for n := c.order.Back(); n != nil; n = c.order.Back() {
		c.drop(n)
	}
	c.closed = true
}

// evict disposes least recently used entries until the budget holds.
// keep is never evicted.
func (c *LRU[K, V]) evict(keep *node[*lruEntry[K, V]]) {
	for c.used > c.max {
		victim := c.order.Back()
		if victim == nil || victim == keep {
			return
		}
		deferred.Logger().Debug("cache: evict",
			"cache", c.name, "key", victim.value.key, "size", victim.value.size)
		c.drop(victim)
		c.stats.evictions.Add(1)
	}
}

func (c *LRU[K, V]) drop(n *node[*lruEntry[K, V]]) {
	e := n.value
	c.order.Remove(n)
	delete(c.entries, e.key)
	c.used -= e.size
	c.stats.entries.Add(-1)
	c.stats.used.Store(c.used)
	closeResource(c.name, c.loader, e.key, e.value)
}

// closeResource disposes a resource. A Close failure leaves GPU memory the
// cache can no longer account for, so it panics.
func closeResource[K comparable, V any](name string, l Loader[K, V], key K, value V) {
	if err := l.Close(key, value); err != nil {
		deferred.Logger().Error("cache: close failed", "cache", name, "key", key, "err", err)
		panic(fmt.Errorf("cache: %s: close %v: %w", name, key, err))
	}
}
