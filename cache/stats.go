package cache

import "sync/atomic"

// Stats is a snapshot of cache statistics.
type Stats struct {
	// Used is the resident capacity in loader units.
	Used int64
	// Maximum is the configured capacity.
	Maximum int64
	// Entries is the number of resident resources.
	Entries int
	// Borrowed is the number of resources with an outstanding ticket.
	// Always zero for an LRU.
	Borrowed int
	// Hits counts requests served by a resident resource.
	Hits uint64
	// Misses counts requests that had to construct a resource.
	Misses uint64
	// Evictions counts resources disposed to make room.
	Evictions uint64
	// Exhausted counts borrows refused for lack of capacity.
	Exhausted uint64
}

// HitRate returns Hits / (Hits + Misses), or 0 before the first request.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters are updated by the owning goroutine and may be read from any
// goroutine through Stats.
type counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	exhausted atomic.Uint64
	used      atomic.Int64
	entries   atomic.Int64
	borrowed  atomic.Int64
}

func (c *counters) snapshot(maximum int64) Stats {
	return Stats{
		Used:      c.used.Load(),
		Maximum:   maximum,
		Entries:   int(c.entries.Load()),
		Borrowed:  int(c.borrowed.Load()),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Exhausted: c.exhausted.Load(),
	}
}
