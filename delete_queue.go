package frameloop

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/frameloop/threading"
)

// DefaultRetentionWindow is the default number of frames an object is kept
// alive after being handed to a DeleteQueue.
const DefaultRetentionWindow = 3

// pendingDeletion is an object waiting for its release frame.
type pendingDeletion struct {
	releaseFrame uint64
	object       Releaser
}

// DeleteQueue defers the release of objects by a fixed number of frames so
// that work already submitted to the device can finish using them.
//
// Add tags each object with the current frame count plus the retention
// window. Advance moves the frame count forward and releases every object
// whose release frame has been reached. Entries are kept in release order,
// so each Advance only inspects the head of the queue.
//
// The queue takes ownership of an object on Add; the caller must not use it
// afterwards. Release is called outside the queue's lock, exactly once per
// object.
//
// DeleteQueue is safe for concurrent use.
type DeleteQueue struct {
	mu         sync.Mutex
	frameCount uint64
	advanced   bool
	retain     uint64
	objects    []pendingDeletion

	// notify wakes a WaitThenClear caller. Buffered so Add never blocks.
	notify chan struct{}
	status *threading.Status

	// Statistics
	released   atomic.Uint64
	violations atomic.Uint64
}

// NewDeleteQueue creates a queue that keeps objects alive for retain frames.
// A retain of 0 uses DefaultRetentionWindow. WaitThenClear returns once
// status is cancelled; a nil status gets a fresh one, cancelled only through
// Status().Cancel().
func NewDeleteQueue(status *threading.Status, retain uint64) *DeleteQueue {
	if retain == 0 {
		retain = DefaultRetentionWindow
	}
	if status == nil {
		status = threading.NewStatus()
	}
	return &DeleteQueue{
		retain: retain,
		notify: make(chan struct{}, 1),
		status: status,
	}
}

// Status returns the cancellation status watched by WaitThenClear.
func (q *DeleteQueue) Status() *threading.Status {
	return q.status
}

// RetainForFrameCount returns the retention window in frames.
func (q *DeleteQueue) RetainForFrameCount() uint64 {
	return q.retain
}

// FrameCount returns the frame the queue last advanced to.
func (q *DeleteQueue) FrameCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frameCount
}

// Len returns the number of objects waiting to be released.
func (q *DeleteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.objects)
}

// Add queues obj for release once the retention window has passed.
// A nil obj is ignored.
func (q *DeleteQueue) Add(obj Releaser) {
	if obj == nil {
		return
	}

	q.mu.Lock()
	q.objects = append(q.objects, pendingDeletion{
		releaseFrame: q.frameCount + q.retain,
		object:       obj,
	})
	q.mu.Unlock()

	q.wake()
}

// AddAll queues every non-nil object with the same release frame, waking a
// waiter once for the whole batch.
func (q *DeleteQueue) AddAll(objs ...Releaser) {
	if len(objs) == 0 {
		return
	}

	q.mu.Lock()
	releaseFrame := q.frameCount + q.retain
	for _, obj := range objs {
		if obj != nil {
			q.objects = append(q.objects, pendingDeletion{releaseFrame: releaseFrame, object: obj})
		}
	}
	q.mu.Unlock()

	q.wake()
}

// Advance sets the queue's frame count to stamp.FrameCount and releases
// every object whose release frame is at or before it. It returns the
// number of objects released.
//
// A stamp older than the current frame count is an ordering violation: it
// is logged, counted and otherwise ignored.
func (q *DeleteQueue) Advance(stamp FrameStamp) int {
	return q.AdvanceBounded(stamp, stamp.FrameCount)
}

// AdvanceBounded is Advance with releases capped at frame limit: objects
// whose release frame lies beyond limit stay queued even when stamp has
// passed it. New objects are still tagged from stamp.FrameCount. The viewer
// uses it to hold back releases while an old frame is still executing.
func (q *DeleteQueue) AdvanceBounded(stamp FrameStamp, limit uint64) int {
	q.mu.Lock()
	if q.advanced && stamp.FrameCount < q.frameCount {
		current := q.frameCount
		q.mu.Unlock()

		q.violations.Add(1)
		Logger().Warn("delete queue: epoch regression ignored",
			"err", fmt.Errorf("%w: frame %d after %d", ErrOrderingViolation, stamp.FrameCount, current))
		return 0
	}
	q.frameCount = stamp.FrameCount
	q.advanced = true
	limit = min(limit, q.frameCount)

	n := 0
	for n < len(q.objects) && q.objects[n].releaseFrame <= limit {
		n++
	}
	ready := q.takeLocked(n)
	q.mu.Unlock()

	released := releaseAll(ready)
	if released > 0 {
		q.released.Add(uint64(released))
		Logger().Debug("delete queue: released", "frame", stamp.FrameCount, "count", released)
	}
	return released
}

// WaitThenClear blocks until the queue is non-empty or its status is
// cancelled, then releases every queued object regardless of its release
// frame. It returns the number released.
//
// WaitThenClear blocks forever if nothing is ever added and the status is
// never cancelled.
func (q *DeleteQueue) WaitThenClear() int {
	for {
		q.mu.Lock()
		if len(q.objects) > 0 || !q.status.Active() {
			ready := q.takeLocked(len(q.objects))
			q.mu.Unlock()
			return q.count(releaseAll(ready))
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.status.Done():
		}
	}
}

// Clear releases every queued object immediately and returns the number
// released.
func (q *DeleteQueue) Clear() int {
	q.mu.Lock()
	ready := q.takeLocked(len(q.objects))
	q.mu.Unlock()

	return q.count(releaseAll(ready))
}

// Released returns the total number of objects released so far.
func (q *DeleteQueue) Released() uint64 {
	return q.released.Load()
}

// Violations returns the number of ordering violations observed by Advance.
func (q *DeleteQueue) Violations() uint64 {
	return q.violations.Load()
}

func (q *DeleteQueue) count(n int) int {
	q.released.Add(uint64(n))
	return n
}

// takeLocked removes the first n entries and returns their objects.
// Must be called with q.mu held.
func (q *DeleteQueue) takeLocked(n int) []Releaser {
	if n == 0 {
		return nil
	}
	ready := make([]Releaser, n)
	for i := range n {
		ready[i] = q.objects[i].object
	}
	q.objects = slices.Delete(q.objects, 0, n)
	return ready
}

func (q *DeleteQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func releaseAll(objs []Releaser) int {
	for _, obj := range objs {
		obj.Release()
	}
	return len(objs)
}
