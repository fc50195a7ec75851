// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package threading

import (
	"sync"
	"sync/atomic"
)

// Status is a shared cancellation flag. Every blocking primitive in this
// package watches a Status and returns as soon as it is cancelled, without
// needing a producer event to wake it.
//
// The zero value is not usable; create one with NewStatus.
//
// Status is safe for concurrent use.
type Status struct {
	active atomic.Bool
	once   sync.Once
	done   chan struct{}
}

// NewStatus returns an active Status.
func NewStatus() *Status {
	s := &Status{done: make(chan struct{})}
	s.active.Store(true)
	return s
}

// Active reports whether Cancel has not yet been called.
func (s *Status) Active() bool {
	return s.active.Load()
}

// Cancel marks the status inactive and wakes every goroutine selecting on
// Done. It reports whether this call did the cancelling; later and
// concurrent calls return false.
func (s *Status) Cancel() bool {
	cancelled := false
	s.once.Do(func() {
		s.active.Store(false)
		close(s.done)
		cancelled = true
	})
	return cancelled
}

// Done returns a channel that is closed once the status is cancelled.
func (s *Status) Done() <-chan struct{} {
	return s.done
}
