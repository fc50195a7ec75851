package frameloop

import (
	"slices"
	"sync"
	"time"
)

// RunBehavior selects how often an UpdateOperation runs.
type RunBehavior int

const (
	// RunOnce runs the operation at the next Update and then drops it.
	RunOnce RunBehavior = iota

	// RunEveryFrame runs the operation at every Update.
	RunEveryFrame
)

// UpdateOperation is work run on the driving goroutine before recording,
// such as merging the results of background loading into the scene.
type UpdateOperation interface {
	Run(stamp FrameStamp)
}

// UpdateFunc adapts a function to the UpdateOperation interface.
type UpdateFunc func(stamp FrameStamp)

// Run calls f.
func (f UpdateFunc) Run(stamp FrameStamp) { f(stamp) }

// Instrumentation observes every frame run by Viewer.Frame, for profiling.
// Both methods are called on the driving goroutine.
type Instrumentation interface {
	FrameBegin(stamp FrameStamp)
	FrameEnd(stamp FrameStamp, err error)
}

// FrameTimer is an Instrumentation that records the duration of the most
// recent frame.
type FrameTimer struct {
	mu    sync.Mutex
	begin time.Time
	last  time.Duration
	count uint64
}

// FrameBegin starts timing a frame.
func (t *FrameTimer) FrameBegin(FrameStamp) {
	t.mu.Lock()
	t.begin = time.Now()
	t.mu.Unlock()
}

// FrameEnd stops timing.
func (t *FrameTimer) FrameEnd(FrameStamp, error) {
	t.mu.Lock()
	t.last = time.Since(t.begin)
	t.count++
	t.mu.Unlock()
}

// Last returns the duration of the last completed frame and the number of
// frames timed.
func (t *FrameTimer) Last() (time.Duration, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.count
}

// UpdateOperations is a list of update operations. Add is safe to call from
// any goroutine.
type UpdateOperations struct {
	mu    sync.Mutex
	once  []UpdateOperation
	every []UpdateOperation
}

// Add registers op.
func (u *UpdateOperations) Add(op UpdateOperation, behavior RunBehavior) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if behavior == RunEveryFrame {
		u.every = append(u.every, op)
	} else {
		u.once = append(u.once, op)
	}
}

// Len returns the number of registered operations.
func (u *UpdateOperations) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.once) + len(u.every)
}

// Run runs every registered operation. One-shot operations run before the
// per-frame ones. Operations added while Run executes wait for the next
// call.
func (u *UpdateOperations) Run(stamp FrameStamp) {
	u.mu.Lock()
	once := u.once
	u.once = nil
	every := slices.Clone(u.every)
	u.mu.Unlock()

	for _, op := range once {
		op.Run(stamp)
	}
	for _, op := range every {
		op.Run(stamp)
	}
}
