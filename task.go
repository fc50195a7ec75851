package frameloop

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// discarder is implemented by command buffers that must be explicitly
// abandoned when a frame is rolled back.
type discarder interface {
	Discard()
}

// submittedFrame is a fence and the frame it guards.
type submittedFrame struct {
	frame uint64
	fence Fence
}

// RecordAndSubmitTask records a list of command graphs into a command buffer
// every frame and submits it to one device.
//
// The task keeps the fences of recent submissions. Before recording frame F
// it waits for every submission at or before F - maxFramesInFlight, which
// bounds how far the CPU runs ahead of the device. Once such a fence is
// signaled, the task's transfer queues are told that frame completed.
//
// A task is recorded by one goroutine at a time; Fence may be called from
// any goroutine.
type RecordAndSubmitTask struct {
	label     string
	device    Device
	graphs    []CommandGraph
	transfers []*TransferQueue

	// Set by the viewer when the task is added.
	maxFramesInFlight uint64
	fenceTimeout      time.Duration

	mu        sync.Mutex
	submitted []submittedFrame // ascending by frame
	current   uint64           // frame of the last prepare

	// prepared is the graph command buffer of the frame being recorded.
	prepared CommandBuffer
	stamp    FrameStamp
}

// NewRecordAndSubmitTask creates a task that records graphs, in order, for
// device.
func NewRecordAndSubmitTask(label string, device Device, graphs ...CommandGraph) *RecordAndSubmitTask {
	return &RecordAndSubmitTask{
		label:             label,
		device:            device,
		graphs:            graphs,
		maxFramesInFlight: DefaultMaxFramesInFlight,
		fenceTimeout:      DefaultFenceTimeout,
	}
}

// Label returns the task's debug label.
func (t *RecordAndSubmitTask) Label() string {
	return t.label
}

// Device returns the device the task submits to.
func (t *RecordAndSubmitTask) Device() Device {
	return t.device
}

// Graphs returns the task's command graphs.
func (t *RecordAndSubmitTask) Graphs() []CommandGraph {
	return t.graphs
}

// AddCommandGraph appends a graph. Call it only between frames.
func (t *RecordAndSubmitTask) AddCommandGraph(g CommandGraph) {
	t.graphs = append(t.graphs, g)
}

// AddTransferQueue attaches q. Its pending copies are recorded ahead of the
// graphs in every submitted frame. Call it only between frames.
func (t *RecordAndSubmitTask) AddTransferQueue(q *TransferQueue) {
	t.transfers = append(t.transfers, q)
}

// TransferQueues returns the attached transfer queues.
func (t *RecordAndSubmitTask) TransferQueues() []*TransferQueue {
	return t.transfers
}

// configure applies the viewer's frame pacing settings.
func (t *RecordAndSubmitTask) configure(o *options) {
	t.maxFramesInFlight = uint64(o.maxFramesInFlight) //nolint:gosec // G115: validated positive
	t.fenceTimeout = o.fenceTimeout
}

// Fence returns the fence of the frame relative frames before the most
// recently recorded one, or nil if that frame was never submitted or has
// already been retired.
func (t *RecordAndSubmitTask) Fence(relative uint64) Fence {
	t.mu.Lock()
	defer t.mu.Unlock()

	if relative > t.current {
		return nil
	}
	frame := t.current - relative
	for _, s := range t.submitted {
		if s.frame == frame {
			return s.fence
		}
	}
	return nil
}

// prepare waits until the device is far enough along to start frame stamp,
// then records the command graphs. On failure nothing is left prepared.
func (t *RecordAndSubmitTask) prepare(stamp FrameStamp) error {
	t.mu.Lock()
	t.current = stamp.FrameCount
	t.mu.Unlock()

	if stamp.FrameCount >= t.maxFramesInFlight {
		if err := t.retireThrough(stamp.FrameCount-t.maxFramesInFlight, t.fenceTimeout); err != nil {
			return err
		}
	}

	cb, err := t.device.NewCommandBuffer(stamp.FrameCount, t.label)
	if err != nil {
		return fmt.Errorf("%s: begin command buffer: %w", t.label, err)
	}
	for i, g := range t.graphs {
		if err := g.Record(cb, stamp); err != nil {
			discard(cb)
			return fmt.Errorf("%s: record graph %d: %w", t.label, i, err)
		}
	}

	t.prepared = cb
	t.stamp = stamp
	return nil
}

// abort discards the prepared command buffer, if any.
func (t *RecordAndSubmitTask) abort() {
	if t.prepared != nil {
		discard(t.prepared)
		t.prepared = nil
	}
}

// submit records pending transfers into their own command buffer and submits
// it ahead of the prepared graph command buffer.
func (t *RecordAndSubmitTask) submit() error {
	if t.prepared == nil {
		return nil
	}
	graphCB := t.prepared
	t.prepared = nil

	cbs := make([]CommandBuffer, 0, 2)
	if len(t.transfers) > 0 {
		transferCB, err := t.device.NewCommandBuffer(t.stamp.FrameCount, t.label+"/transfer")
		if err != nil {
			discard(graphCB)
			return fmt.Errorf("%s: begin transfer command buffer: %w", t.label, err)
		}
		for _, q := range t.transfers {
			q.Record(transferCB)
		}
		cbs = append(cbs, transferCB)
	}
	cbs = append(cbs, graphCB)

	fence, err := t.device.Submit(cbs)
	if err != nil {
		return fmt.Errorf("%s: submit frame %d: %w", t.label, t.stamp.FrameCount, err)
	}

	t.mu.Lock()
	t.submitted = append(t.submitted, submittedFrame{frame: t.stamp.FrameCount, fence: fence})
	t.mu.Unlock()
	return nil
}

// retireThrough waits for every submission at or before frame, in order,
// and retires it. It stops at the first fence that times out.
func (t *RecordAndSubmitTask) retireThrough(frame uint64, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 && timeout != WaitForever {
		deadline = time.Now().Add(timeout)
	}

	for {
		t.mu.Lock()
		if len(t.submitted) == 0 || t.submitted[0].frame > frame {
			t.mu.Unlock()
			return nil
		}
		next := t.submitted[0]
		t.mu.Unlock()

		wait := timeout
		if !deadline.IsZero() {
			wait = max(time.Until(deadline), 0)
		}
		ok, err := next.fence.Wait(wait)
		if err != nil {
			return fmt.Errorf("%s: wait for frame %d: %w", t.label, next.frame, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s frame %d", ErrTimeout, t.label, next.frame)
		}
		t.retire(next)
	}
}

// retireSignaled retires every leading submission whose fence has already
// been signaled, without blocking.
func (t *RecordAndSubmitTask) retireSignaled() error {
	t.mu.Lock()
	last := t.current
	if n := len(t.submitted); n > 0 {
		last = t.submitted[n-1].frame
	}
	t.mu.Unlock()

	err := t.retireThrough(last, 0)
	if errors.Is(err, ErrTimeout) {
		return nil
	}
	return err
}

// retire releases a signaled submission and completes its transfers.
func (t *RecordAndSubmitTask) retire(s submittedFrame) {
	t.mu.Lock()
	t.submitted = slices.DeleteFunc(t.submitted, func(e submittedFrame) bool {
		return e.frame == s.frame
	})
	t.mu.Unlock()

	for _, q := range t.transfers {
		q.Complete(s.frame)
	}
	s.fence.Release()
	Logger().Debug("task: frame retired", "task", t.label, "frame", s.frame)
}

// InFlight returns the number of submissions not yet retired.
func (t *RecordAndSubmitTask) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.submitted)
}

// oldestInFlight returns the frame of the oldest submission not yet retired.
func (t *RecordAndSubmitTask) oldestInFlight() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.submitted) == 0 {
		return 0, false
	}
	return t.submitted[0].frame, true
}

func discard(cb CommandBuffer) {
	if d, ok := cb.(discarder); ok {
		d.Discard()
	}
}
