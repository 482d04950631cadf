package cache

import (
	"errors"
	"fmt"
)

// lender is implemented by every BorrowCache instantiation so tickets and
// scopes can hold loans from caches of different key and value types.
type lender interface {
	release(t *Ticket) error
}

// Ticket is one outstanding loan from a BorrowCache.
type Ticket struct {
	id    uint64
	key   any
	owner lender
	slot  any
}

// Return gives the ticket back to the cache that issued it.
func (t *Ticket) Return() error {
	if t == nil || t.owner == nil {
		return fmt.Errorf("%w: nil ticket", ErrTicketMisuse)
	}
	return t.owner.release(t)
}

// Returned reports whether the ticket has been given back.
func (t *Ticket) Returned() bool {
	return t.slot == nil
}

// Key returns the key the ticket was issued for.
func (t *Ticket) Key() any {
	return t.key
}

func (t *Ticket) String() string {
	return fmt.Sprintf("ticket#%d(%v)", t.id, t.key)
}

// Scope collects tickets and returns all of them on Close, in reverse
// order of acquisition. A frame opens one scope and defers its Close so
// every loan is returned on every exit path.
//
//	var sc cache.Scope
//	defer func() { err = errors.Join(err, sc.Close()) }()
//	fb, err := cache.BorrowIn(&sc, rgba, desc)
type Scope struct {
	tickets []*Ticket
}

// BorrowIn borrows key from c and registers the ticket with s.
func BorrowIn[K comparable, V any](s *Scope, c *BorrowCache[K, V], key K) (V, error) {
	v, t, err := c.Borrow(key)
	if err != nil {
		return v, err
	}
	s.Hold(t)
	return v, nil
}

// Hold registers t so Close returns it.
func (s *Scope) Hold(t *Ticket) {
	s.tickets = append(s.tickets, t)
}

// Release returns t now and forgets it. Use it for scratch resources that
// must go back before the scope ends.
func (s *Scope) Release(t *Ticket) error {
	for i := len(s.tickets) - 1; i >= 0; i-- {
		if s.tickets[i] == t {
			s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)
			return t.Return()
		}
	}
	return fmt.Errorf("%w: %v not held by scope", ErrTicketMisuse, t)
}

// Len returns the number of tickets still held.
func (s *Scope) Len() int {
	return len(s.tickets)
}

// Close returns every held ticket, newest first, and joins the failures.
// Every ticket is attempted even when an earlier one fails.
func (s *Scope) Close() error {
	var errs []error
	for i := len(s.tickets) - 1; i >= 0; i-- {
		if err := s.tickets[i].Return(); err != nil {
			errs = append(errs, err)
		}
	}
	s.tickets = s.tickets[:0]
	return errors.Join(errs...)
}
