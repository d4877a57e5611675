package service

import (
	"context"
	"sync"
	"time"

	"handoff/internal/errors"
)

// leaseRegistry hands out per-conversation exclusive leases. Every
// transition-producing call holds the conversation's lease for its duration;
// different conversations never contend. Acquisition is bounded: a caller
// that cannot get the lease within the timeout gets Busy instead of queueing
// behind a stuck external call.
//
// Slots are refcounted and reaped when the last holder or waiter leaves, so
// the registry stays proportional to in-flight work rather than to every
// conversation ID ever seen.
type leaseRegistry struct {
	mu      sync.Mutex
	slots   map[string]*leaseSlot
	timeout time.Duration
}

type leaseSlot struct {
	ch   chan struct{}
	refs int
}

func newLeaseRegistry(timeout time.Duration) *leaseRegistry {
	return &leaseRegistry{
		slots:   make(map[string]*leaseSlot),
		timeout: timeout,
	}
}

func (r *leaseRegistry) checkout(conversationID string) *leaseSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[conversationID]
	if !ok {
		s = &leaseSlot{ch: make(chan struct{}, 1)}
		r.slots[conversationID] = s
	}
	s.refs++
	return s
}

// checkin drops one reference. The slot is only deleted at zero references,
// so a waiter can never be split onto a second channel for the same ID.
func (r *leaseRegistry) checkin(conversationID string, s *leaseSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(r.slots, conversationID)
	}
}

// acquire blocks until the lease is held, the timeout elapses, or ctx is
// done. On success the returned release function must be called exactly once.
func (r *leaseRegistry) acquire(ctx context.Context, conversationID string) (func(), error) {
	s := r.checkout(conversationID)

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			r.checkin(conversationID, s)
		}, nil
	case <-timer.C:
		r.checkin(conversationID, s)
		return nil, errors.NewBusyError(conversationID)
	case <-ctx.Done():
		r.checkin(conversationID, s)
		return nil, errors.NewBusyError(conversationID)
	}
}

// size reports the number of live slots.
func (r *leaseRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
