// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package threading

import "sync"

// FrameGate parks goroutines until a frame epoch is published.
// The driving goroutine calls Set once per frame. Each Set starts a new
// generation; worker goroutines remember the last generation they handled
// and call Wait to block for the next one.
//
// FrameGate is safe for concurrent use.
type FrameGate struct {
	mu         sync.Mutex
	epoch      uint64
	generation uint64 // number of successful Set calls
	changed    chan struct{}
	status     *Status
}

// NewFrameGate creates a gate that wakes its waiters when status is
// cancelled. A nil status never cancels.
func NewFrameGate(status *Status) *FrameGate {
	return &FrameGate{
		changed: make(chan struct{}),
		status:  status,
	}
}

// Set publishes epoch and wakes all waiters. Epochs must not go backwards;
// a regression is ignored and reported as false.
func (g *FrameGate) Set(epoch uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.generation > 0 && epoch < g.epoch {
		return false
	}
	g.epoch = epoch
	g.generation++
	close(g.changed)
	g.changed = make(chan struct{})
	return true
}

// Generation returns the number of epochs published so far.
func (g *FrameGate) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Wait blocks until a generation newer than generation has been published.
// It returns the published epoch and its generation. ok is false if the
// gate's status was cancelled first.
func (g *FrameGate) Wait(generation uint64) (epoch, next uint64, ok bool) {
	return g.wait(func() bool { return g.generation > generation })
}

// WaitFor blocks until an epoch at or beyond target has been published.
// It returns false if the gate's status was cancelled first.
func (g *FrameGate) WaitFor(target uint64) bool {
	_, _, ok := g.wait(func() bool { return g.generation > 0 && g.epoch >= target })
	return ok
}

func (g *FrameGate) wait(ready func() bool) (epoch, generation uint64, ok bool) {
	var done <-chan struct{}
	if g.status != nil {
		done = g.status.Done()
	}

	for {
		g.mu.Lock()
		if ready() {
			epoch, generation = g.epoch, g.generation
			g.mu.Unlock()
			return epoch, generation, true
		}
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-changed:
		case <-done:
			return 0, 0, false
		}
	}
}
