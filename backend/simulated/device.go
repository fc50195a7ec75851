// Package simulated provides a host-memory frameloop device.
//
// Submissions execute in order on a background goroutine after a
// configurable latency, performing their buffer copies on host memory and
// then signaling their fence. It is useful for tests and demos that need
// real asynchrony without a GPU.
package simulated

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/frameloop"
)

// ErrDeviceLost is returned after the device was closed or lost.
var ErrDeviceLost = errors.New("simulated: device lost")

// DefaultQueueDepth is the number of submissions that may wait for execution.
const DefaultQueueDepth = 16

// Config holds configuration for creating a Device.
type Config struct {
	// Latency is how long each submission takes to execute.
	Latency time.Duration

	// QueueDepth bounds pending submissions; Submit blocks when full.
	// Defaults to DefaultQueueDepth if <= 0.
	QueueDepth int
}

// Stats contains device statistics.
type Stats struct {
	Submitted uint64
	Executed  uint64
	Copies    uint64
	Bytes     uint64

	// UseAfterRelease counts copies skipped because a buffer had already
	// been destroyed when the device executed them.
	UseAfterRelease uint64
}

// String returns a human-readable string of device stats.
func (s Stats) String() string {
	return fmt.Sprintf("Device[%d submitted, %d executed, %d copies, %d bytes, %d use-after-release]",
		s.Submitted, s.Executed, s.Copies, s.Bytes, s.UseAfterRelease)
}

// submission is a batch waiting for the execution goroutine.
type submission struct {
	cbs   []*CommandBuffer
	fence *Fence
}

// Device is a frameloop.Device executing on a goroutine.
type Device struct {
	latency atomic.Int64 // time.Duration
	queue   chan submission
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex // guards the fields below against queue sends
	lost   bool
	closed bool
	last   *Fence // most recent submission

	submitted       atomic.Uint64
	executed        atomic.Uint64
	copies          atomic.Uint64
	bytes           atomic.Uint64
	useAfterRelease atomic.Uint64
}

// NewDevice starts a device. Call Close to stop it.
func NewDevice(cfg Config) *Device {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	d := &Device{
		queue: make(chan submission, depth),
		done:  make(chan struct{}),
	}
	d.latency.Store(int64(cfg.Latency))
	d.wg.Add(1)
	go d.run()
	return d
}

// run executes submissions in order until Close.
func (d *Device) run() {
	defer d.wg.Done()
	for {
		select {
		case s := <-d.queue:
			d.execute(s)
		case <-d.done:
			// Drain so that no waiter is left hanging.
			for {
				select {
				case s := <-d.queue:
					d.execute(s)
				default:
					return
				}
			}
		}
	}
}

func (d *Device) execute(s submission) {
	if latency := time.Duration(d.latency.Load()); latency > 0 {
		time.Sleep(latency)
	}
	for _, cb := range s.cbs {
		for _, c := range cb.copies {
			if !c.execute() {
				d.useAfterRelease.Add(1)
				frameloop.Logger().Error("simulated: copy touches a released buffer",
					"command_buffer", cb.label, "epoch", cb.epoch)
				continue
			}
			d.copies.Add(1)
			d.bytes.Add(c.size)
		}
	}
	d.executed.Add(1)
	s.fence.signal()
}

// SetLatency changes the execution latency of later submissions.
func (d *Device) SetLatency(latency time.Duration) {
	d.latency.Store(int64(latency))
}

// NewCommandBuffer begins a command buffer for epoch.
func (d *Device) NewCommandBuffer(epoch uint64, label string) (frameloop.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	return &CommandBuffer{epoch: epoch, label: label}, nil
}

// Submit queues cbs for execution.
func (d *Device) Submit(cbs []frameloop.CommandBuffer) (frameloop.Fence, error) {
	s := submission{
		cbs:   make([]*CommandBuffer, 0, len(cbs)),
		fence: newFence(),
	}
	for _, cb := range cbs {
		c, ok := cb.(*CommandBuffer)
		if !ok {
			return nil, fmt.Errorf("simulated: foreign command buffer %T", cb)
		}
		if c.err != nil {
			return nil, fmt.Errorf("simulated: %s: %w", c.label, c.err)
		}
		s.cbs = append(s.cbs, c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return nil, ErrDeviceLost
	}
	d.queue <- s
	d.last = s.fence
	d.submitted.Add(1)
	return s.fence, nil
}

// WaitIdle blocks until every submission so far has executed.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()

	if last != nil {
		<-last.signaled
	}
	return nil
}

// Lose marks the device lost: queued work still executes, new work fails.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lost {
		d.lost = true
		frameloop.Logger().Warn("simulated: device lost")
	}
}

// Close executes the queued submissions and stops the device. It is safe
// to call more than once.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.lost = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
}

// Stats returns device statistics.
func (d *Device) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Executed:  d.executed.Load(),
		Copies:    d.copies.Load(),
		Bytes:     d.bytes.Load(),

		UseAfterRelease: d.useAfterRelease.Load(),
	}
}

// Fence is signaled by the execution goroutine.
type Fence struct {
	signaled chan struct{}
	released atomic.Bool
}

func newFence() *Fence {
	return &Fence{signaled: make(chan struct{})}
}

func (f *Fence) signal() {
	close(f.signaled)
}

// Signaled reports whether the submission has executed.
func (f *Fence) Signaled() bool {
	select {
	case <-f.signaled:
		return true
	default:
		return false
	}
}

// Wait blocks until the submission executed or timeout elapsed.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	switch timeout {
	case 0:
		return f.Signaled(), nil
	case frameloop.WaitForever:
		<-f.signaled
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.signaled:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Release marks the fence released.
func (f *Fence) Release() {
	f.released.Store(true)
}

// Released reports whether Release was called.
func (f *Fence) Released() bool {
	return f.released.Load()
}

var (
	_ frameloop.Device = (*Device)(nil)
	_ frameloop.Fence  = (*Fence)(nil)
)
