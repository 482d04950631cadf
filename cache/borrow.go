package cache

import (
	"fmt"

	"github.com/gogpu/deferred"
)

// BorrowCache lends resources for exclusive use. A resource with an
// outstanding ticket is never evicted or lent again; once its ticket is
// returned it becomes idle and is reused by the next borrow of the same
// key, or evicted least-recently-lent first when room is needed.
//
// Several resources may be resident for one key: borrowing a key whose
// resident resources are all lent constructs another one.
//
// Borrow fails with ErrCapacityExhausted rather than exceed the configured
// maximum while resources are lent. An oversized resource is admitted only
// when nothing else is lent.
//
// BorrowCache is not safe for concurrent use. Stats may be called from any
// goroutine.
type BorrowCache[K comparable, V any] struct {
	name      string
	loader    Loader[K, V]
	estimator Estimator[K]
	max       int64

	slots map[K][]*slot[K, V]
	idle  recencyList[*slot[K, V]]

	used     int64
	lentUsed int64
	lent     int
	nextID   uint64
	closed   bool
	stats    counters
}

type slot[K comparable, V any] struct {
	key   K
	value V
	size  int64
	node  *node[*slot[K, V]]
	// ticket is the outstanding ticket, nil while idle.
	ticket *Ticket
}

// NewBorrowCache creates an empty borrow cache. If loader also implements
// Estimator, capacity is checked before each construction.
func NewBorrowCache[K comparable, V any](loader Loader[K, V], cfg Config) *BorrowCache[K, V] {
	if loader == nil {
		panic("cache: NewBorrowCache with nil loader")
	}
	if cfg.MaximumCapacity < 0 {
		panic(fmt.Sprintf("cache: negative capacity %d", cfg.MaximumCapacity))
	}
	est, _ := loader.(Estimator[K])
	return &BorrowCache[K, V]{
		name:      cfg.Name,
		loader:    loader,
		estimator: est,
		max:       cfg.MaximumCapacity,
		slots:     make(map[K][]*slot[K, V]),
	}
}

// Borrow lends a resource for key. An idle resident resource is reused
// as-is; otherwise one is constructed. The returned ticket must be given
// back exactly once through Return.
func (c *BorrowCache[K, V]) Borrow(key K) (V, *Ticket, error) {
	var zero V
	if c.closed {
		return zero, nil, ErrClosed
	}

	if s := c.idleSlot(key); s != nil {
		c.idle.Remove(s.node)
		c.stats.hits.Add(1)
		return s.value, c.lend(s), nil
	}
	c.stats.misses.Add(1)

	if c.estimator != nil {
		if err := c.makeRoom(key, c.estimator.Estimate(key)); err != nil {
			return zero, nil, err
		}
	}

	value, err := c.loader.Load(key)
	if err != nil {
		return zero, nil, &LoadError{Cache: c.name, Key: key, Err: err}
	}
	size := c.loader.SizeOf(key, value)
	if size < 0 {
		panic(fmt.Sprintf("cache: %s: negative size %d for %v", c.name, size, key))
	}
	if err := c.makeRoom(key, size); err != nil {
		closeResource(c.name, c.loader, key, value)
		return zero, nil, err
	}

	s := &slot[K, V]{key: key, value: value, size: size}
	c.slots[key] = append(c.slots[key], s)
	c.used += size
	c.stats.entries.Add(1)
	c.stats.used.Store(c.used)
	deferred.Logger().Debug("cache: constructed",
		"cache", c.name, "key", key, "size", size, "used", c.used, "max", c.max)
	return value, c.lend(s), nil
}

// Return gives a ticket back. The resource becomes idle and evictable
// again. Returning a ticket twice, or a ticket issued by another cache,
// fails with ErrTicketMisuse.
func (c *BorrowCache[K, V]) Return(t *Ticket) error {
	return c.release(t)
}

// Outstanding returns the number of tickets not yet returned.
func (c *BorrowCache[K, V]) Outstanding() int {
	return c.lent
}

// Size returns the resident capacity, lent and idle.
func (c *BorrowCache[K, V]) Size() int64 {
	return c.used
}

// Len returns the number of resident resources.
func (c *BorrowCache[K, V]) Len() int {
	n := 0
	for _, ss := range c.slots {
		n += len(ss)
	}
	return n
}

// MaximumCapacity returns the configured budget.
func (c *BorrowCache[K, V]) MaximumCapacity() int64 {
	return c.max
}

// Stats returns a snapshot of the cache statistics.
func (c *BorrowCache[K, V]) Stats() Stats {
	return c.stats.snapshot(c.max)
}

// Trim disposes every idle resource and returns how many were dropped.
func (c *BorrowCache[K, V]) Trim() int {
	n := 0
	for victim := c.idle.Back(); victim != nil; victim = c.idle.Back() {
		c.drop(victim.value)
		n++
	}
	return n
}

// Close disposes every resident resource. It fails with
// ErrOutstandingBorrows, leaving the cache usable, while tickets are out.
func (c *BorrowCache[K, V]) Close() error {
	if c.closed {
		return nil
	}
	if c.lent > 0 {
		return fmt.Errorf("%w: %s has %d", ErrOutstandingBorrows, c.name, c.lent)
	}
	c.Trim()
	c.closed = true
	return nil
}

func (c *BorrowCache[K, V]) idleSlot(key K) *slot[K, V] {
	var best *slot[K, V]
	for _, s := range c.slots[key] {
		if s.ticket != nil {
			continue
		}
		// Prefer the most recently returned resource.
		if best == nil || newer(s.node, best.node) {
			best = s
		}
	}
	return best
}

// newer reports whether a sits closer to the front of the idle list than b.
func newer[T any](a, b *node[T]) bool {
	for n := b.Newer(); n != nil; n = n.Newer() {
		if n == a {
			return true
		}
	}
	return false
}

// makeRoom evicts idle resources until size more units fit. Nothing is
// evicted when the lent resources alone leave too little room.
func (c *BorrowCache[K, V]) makeRoom(key K, size int64) error {
	if c.lentUsed+size > c.max && c.lent > 0 {
		c.stats.exhausted.Add(1)
		deferred.Logger().Debug("cache: exhausted",
			"cache", c.name, "key", key, "size", size, "lent", c.lentUsed, "max", c.max)
		return fmt.Errorf("%w: %s needs %d units, %d of %d lent",
			ErrCapacityExhausted, c.name, size, c.lentUsed, c.max)
	}
	for c.used+size > c.max {
		victim := c.idle.Back()
		if victim == nil {
			break
		}
		deferred.Logger().Debug("cache: evict",
			"cache", c.name, "key", victim.value.key, "size", victim.value.size)
		c.drop(victim.value)
		c.stats.evictions.Add(1)
	}
	return nil
}

func (c *BorrowCache[K, V]) lend(s *slot[K, V]) *Ticket {
	c.nextID++
	t := &Ticket{id: c.nextID, key: s.key, owner: c, slot: s}
	s.ticket = t
	c.lent++
	c.lentUsed += s.size
	c.stats.borrowed.Store(int64(c.lent))
	return t
}

func (c *BorrowCache[K, V]) release(t *Ticket) error {
	if t == nil {
		return fmt.Errorf("%w: nil ticket", ErrTicketMisuse)
	}
	if t.owner != lender(c) {
		deferred.Logger().Error("cache: foreign ticket", "cache", c.name, "ticket", t.id)
		return fmt.Errorf("%w: ticket %d for %v not issued by %s", ErrTicketMisuse, t.id, t.key, c.name)
	}
	s, ok := t.slot.(*slot[K, V])
	if !ok || s.ticket != t {
		deferred.Logger().Error("cache: ticket returned twice", "cache", c.name, "ticket", t.id)
		return fmt.Errorf("%w: ticket %d for %v already returned", ErrTicketMisuse, t.id, t.key)
	}
	s.ticket = nil
	t.slot = nil
	c.lent--
	c.lentUsed -= s.size
	c.stats.borrowed.Store(int64(c.lent))
	s.node = c.idle.PushFront(s)
	return nil
}

func (c *BorrowCache[K, V]) drop(s *slot[K, V]) {
	c.idle.Remove(s.node)
	ss := c.slots[s.key]
	for i, other := range ss {
		if other == s {
			ss = append(ss[:i], ss[i+1:]...)
			break
		}
	}
	if len(ss) == 0 {
		delete(c.slots, s.key)
	} else {
		c.slots[s.key] = ss
	}
	c.used -= s.size
	c.stats.entries.Add(-1)
	c.stats.used.Store(c.used)
	closeResource(c.name, c.loader, s.key, s.value)
}
