// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package threading

import "sync"

// Barrier is a reusable rendezvous point for a fixed number of participants.
// No participant returns from ArriveAndWait until all of them have arrived
// for the current generation, after which the barrier resets for the next.
//
// Barrier is safe for concurrent use.
type Barrier struct {
	mu           sync.Mutex
	participants int
	arrived      int
	generation   chan struct{} // closed when the current generation completes
	status       *Status
}

// NewBarrier creates a barrier for n participants. Waiters return early
// with false once status is cancelled. A nil status never cancels.
func NewBarrier(n int, status *Status) *Barrier {
	if n < 1 {
		n = 1
	}
	return &Barrier{
		participants: n,
		generation:   make(chan struct{}),
		status:       status,
	}
}

// Participants returns the number of arrivals that complete a generation.
func (b *Barrier) Participants() int {
	return b.participants
}

// ArriveAndWait registers an arrival and blocks until every participant has
// arrived. It returns false if the barrier's status was cancelled first.
func (b *Barrier) ArriveAndWait() bool {
	gen := b.arrive()
	if gen == nil {
		return true
	}

	var done <-chan struct{}
	if b.status != nil {
		done = b.status.Done()
	}

	select {
	case <-gen:
		return true
	case <-done:
		// The generation may have completed at the same moment.
		select {
		case <-gen:
			return true
		default:
			return false
		}
	}
}

// Arrive registers an arrival without waiting for the others.
func (b *Barrier) Arrive() {
	b.arrive()
}

// arrive counts one arrival. It returns nil if this arrival completed the
// generation, otherwise the channel that closes when it completes.
func (b *Barrier) arrive() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.arrived++
	gen := b.generation
	if b.arrived < b.participants {
		return gen
	}

	b.arrived = 0
	b.generation = make(chan struct{})
	close(gen)
	return nil
}
