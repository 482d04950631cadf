package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the caches.
var (
	// ErrCapacityExhausted is returned by BorrowCache.Borrow when a new
	// entry cannot be made resident because the remaining capacity is pinned
	// by outstanding tickets.
	ErrCapacityExhausted = errors.New("cache: capacity exhausted")

	// ErrTicketMisuse is returned when a ticket is returned twice or to a
	// cache that did not issue it.
	ErrTicketMisuse = errors.New("cache: ticket misuse")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrOutstandingBorrows is returned by BorrowCache.Close while tickets
	// are still outstanding.
	ErrOutstandingBorrows = errors.New("cache: outstanding borrows")
)

// LoadError reports a failed resource construction. The cache does not
// register anything for Key when a LoadError is returned.
type LoadError struct {
	Cache string
	Key   any
	Err   error
}

func (e *LoadError) Error() string {
	if e.Cache != "" {
		return fmt.Sprintf("cache: %s: load %v: %v", e.Cache, e.Key, e.Err)
	}
	return fmt.Sprintf("cache: load %v: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
