// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package threading

import (
	"sync"
	"sync/atomic"
)

// Workers is a fixed set of long-lived goroutines.
//
// Each worker runs its loop function until the loop returns. Loops are
// expected to block on primitives that watch the Workers' status (a
// FrameGate or Barrier created with Status()), so that Stop can wake them.
//
// Thread safety: Workers is safe for concurrent use.
type Workers struct {
	// n is the number of worker goroutines.
	n int

	// status is cancelled by Stop.
	status *Status

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether Stop has not been called yet.
	running atomic.Bool
}

// StartWorkers launches n goroutines, each calling loop with its worker id
// in [0, n). The loops observe cancellation through status; pass nil to
// have Workers create its own. If n is 0 or negative, no goroutines start.
func StartWorkers(n int, status *Status, loop func(id int)) *Workers {
	if n < 0 {
		n = 0
	}
	if status == nil {
		status = NewStatus()
	}

	w := &Workers{
		n:      n,
		status: status,
	}
	w.running.Store(true)

	w.wg.Add(n)
	for i := range n {
		go func(id int) {
			defer w.wg.Done()
			loop(id)
		}(i)
	}

	return w
}

// Stop cancels the workers' status and waits for every loop to return.
// Stop is safe to call multiple times; only the first call waits.
func (w *Workers) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		// Already stopped
		return
	}

	w.status.Cancel()
	w.wg.Wait()
}

// Len returns the number of worker goroutines.
func (w *Workers) Len() int {
	return w.n
}

// Running reports whether Stop has not been called.
func (w *Workers) Running() bool {
	return w.running.Load()
}

// Status returns the status cancelled by Stop.
func (w *Workers) Status() *Status {
	return w.status
}
