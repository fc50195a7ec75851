package frameloop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/frameloop/threading"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// UseTimeSinceStart makes AdvanceToNextFrame set the simulation time to the
// seconds elapsed since the viewer was created.
const UseTimeSinceStart = math.MaxFloat64

// Viewer orchestrates the frame loop: it polls events, advances the frame
// epoch, compiles and records command graphs, submits them and presents the
// result.
//
// Viewer methods must be called from the goroutine driving the loop, with
// the exception of Close, Active, Status, FrameStamp and the accessors of
// the DeleteQueue, which are safe from any goroutine.
type Viewer struct {
	opts  options
	start time.Time

	status      *threading.Status
	deleteQueue *DeleteQueue
	updates     UpdateOperations

	// stamp is the current frame, nil before the first frame.
	stamp atomic.Pointer[FrameStamp]

	// Per-frame progress, driving goroutine only.
	recorded    bool
	presentable bool
	events      []Event

	mu       sync.Mutex
	targets  []PresentationTarget
	sources  []EventSource
	handlers []EventHandler
	tasks    []*RecordAndSubmitTask
	session  *threadingSession
	threaded bool
}

// NewViewer creates a viewer. It returns an error wrapping ErrInvalidConfig
// if the options are inconsistent.
func NewViewer(opts ...Option) (*Viewer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	status := threading.NewStatus()
	return &Viewer{
		opts:        o,
		start:       o.clock(),
		status:      status,
		deleteQueue: NewDeleteQueue(status, o.retentionWindow),
	}, nil
}

// Status returns the viewer's status. It is cancelled by Close.
func (v *Viewer) Status() *threading.Status {
	return v.status
}

// DeleteQueue returns the queue that defers the release of resources
// dropped by the application until the device can no longer use them.
func (v *Viewer) DeleteQueue() *DeleteQueue {
	return v.deleteQueue
}

// FrameStamp returns the stamp of the current frame. It is the zero stamp
// before the first call to AdvanceToNextFrame.
func (v *Viewer) FrameStamp() FrameStamp {
	if s := v.stamp.Load(); s != nil {
		return *s
	}
	return FrameStamp{}
}

// Active reports whether the viewer is open and has something to present to.
func (v *Viewer) Active() bool {
	if !v.status.Active() {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.targets) > 0
}

// Close stops the loop. It unblocks every goroutine waiting in a DeleteQueue,
// FrameGate or Barrier owned by the viewer, so that StopThreading can join
// the workers. Close is idempotent and safe to call from any goroutine.
func (v *Viewer) Close() {
	if !v.status.Cancel() {
		return
	}

	v.mu.Lock()
	s := v.session
	v.mu.Unlock()
	if s != nil {
		s.status.Cancel()
	}
	Logger().Info("viewer: closed", "frame", v.FrameStamp().FrameCount)
}

// Shutdown closes the viewer, joins the recording workers, waits for the
// devices to go idle and releases everything still queued for deletion.
func (v *Viewer) Shutdown() error {
	v.Close()
	v.StopThreading()
	err := v.DeviceWaitIdle()

	for _, task := range v.Tasks() {
		for _, q := range task.TransferQueues() {
			q.Clear()
		}
	}
	v.deleteQueue.Clear()
	return err
}

// AddPresentationTarget adds a target presented to every frame. Targets must
// be comparable.
func (v *Viewer) AddPresentationTarget(t PresentationTarget) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = append(v.targets, t)
}

// RemovePresentationTarget removes t and reports whether it was present.
func (v *Viewer) RemovePresentationTarget(t PresentationTarget) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := slices.Index(v.targets, t)
	if i < 0 {
		return false
	}
	v.targets = slices.Delete(v.targets, i, i+1)
	return true
}

// Targets returns the presentation targets.
func (v *Viewer) Targets() []PresentationTarget {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.targets)
}

// AddEventSource adds a source polled every frame. Presentation targets that
// implement EventSource are polled without being added.
func (v *Viewer) AddEventSource(s EventSource) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sources = append(v.sources, s)
}

// AddEventHandler adds a handler run by HandleEvents.
func (v *Viewer) AddEventHandler(h EventHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = append(v.handlers, h)
}

// PollEvents collects events from every source. With discard set, the
// events of the previous poll are dropped first. It reports whether any new
// event arrived.
func (v *Viewer) PollEvents(discard bool) bool {
	v.mu.Lock()
	sources := slices.Clone(v.sources)
	for _, t := range v.targets {
		if s, ok := t.(EventSource); ok {
			sources = append(sources, s)
		}
	}
	v.mu.Unlock()

	if discard {
		v.events = nil
	}
	n := len(v.events)
	for _, s := range sources {
		v.events = append(v.events, s.PollEvents()...)
	}
	return len(v.events) > n
}

// Events returns the events collected by the last poll.
func (v *Viewer) Events() []Event {
	return v.events
}

// HandleEvents passes every collected event to every handler, in order.
func (v *Viewer) HandleEvents() {
	v.mu.Lock()
	handlers := slices.Clone(v.handlers)
	v.mu.Unlock()

	for _, e := range v.events {
		for _, h := range handlers {
			h.HandleEvent(e)
		}
	}
}

// AddUpdateOperation registers op. It is safe to call from any goroutine.
func (v *Viewer) AddUpdateOperation(op UpdateOperation, behavior RunBehavior) {
	v.updates.Add(op, behavior)
}

// Update runs the registered update operations for the current frame.
func (v *Viewer) Update() {
	v.updates.Run(v.FrameStamp())
}

// AddTask adds a task recorded and submitted every frame. If threading is
// running, the workers are restarted to take the new task into account.
func (v *Viewer) AddTask(task *RecordAndSubmitTask) {
	task.configure(&v.opts)

	v.mu.Lock()
	v.tasks = append(v.tasks, task)
	restart := v.threaded
	v.mu.Unlock()

	if restart {
		v.StopThreading()
		v.SetupThreading()
	}
}

// Tasks returns the viewer's tasks.
func (v *Viewer) Tasks() []*RecordAndSubmitTask {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.tasks)
}

// AdvanceToNextFrame polls events and starts a new frame. It returns false,
// without touching any state, once the viewer is inactive. Pass
// UseTimeSinceStart to derive the simulation time from the clock.
func (v *Viewer) AdvanceToNextFrame(simulationTime float64) bool {
	if !v.Active() {
		return false
	}

	v.PollEvents(true)

	now := v.opts.clock()
	if simulationTime == UseTimeSinceStart {
		simulationTime = now.Sub(v.start).Seconds()
	}

	var stamp FrameStamp
	if prev := v.stamp.Load(); prev != nil {
		stamp = prev.Next(now, simulationTime)
	} else {
		stamp = NewFrameStamp(now, simulationTime)
	}
	v.stamp.Store(&stamp)
	v.recorded = false
	v.presentable = false

	released := v.deleteQueue.AdvanceBounded(stamp, v.releaseLimit(stamp.FrameCount))
	Logger().Debug("viewer: frame advanced", "frame", stamp.FrameCount, "released", released)
	return true
}

// releaseLimit is the last release frame the delete queue may reach at
// frame. An object tagged frame A+R, with R the retention window, is only
// released once every submission up to frame A has retired, even if a fence
// timed out and frames were dropped meanwhile.
func (v *Viewer) releaseLimit(frame uint64) uint64 {
	limit := frame
	for _, task := range v.Tasks() {
		if oldest, ok := task.oldestInFlight(); ok {
			limit = min(limit, oldest+v.opts.retentionWindow-1)
		}
	}
	return limit
}

// Compile prepares the device resources of every graph of every task,
// running up to the configured number of threads at once. It does nothing
// without a Compiler.
func (v *Viewer) Compile(ctx context.Context, hints ResourceHints) error {
	if !v.status.Active() {
		return ErrInactiveViewer
	}
	compiler := v.opts.compiler
	if compiler == nil {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.opts.threads, 1))
	for _, task := range v.Tasks() {
		for i, graph := range task.Graphs() {
			g.Go(func() error {
				if err := compiler.Compile(ctx, graph, hints); err != nil {
					return fmt.Errorf("compile %s graph %d: %w", task.Label(), i, err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// RecordAndSubmit records every task for the current frame and submits them
// in task order. It is a no-op when the viewer is inactive or the frame was
// already submitted.
//
// If any task fails to record, no task is submitted and the frame is not
// presented; the loop may continue with the next frame. A submission
// failure closes the viewer.
func (v *Viewer) RecordAndSubmit() error {
	if !v.Active() || v.recorded || v.stamp.Load() == nil {
		return nil
	}
	v.recorded = true
	stamp := v.FrameStamp()

	v.mu.Lock()
	tasks := slices.Clone(v.tasks)
	s := v.session
	v.mu.Unlock()

	var err error
	if s != nil {
		var ok bool
		ok, err = v.recordThreaded(s, stamp)
		if !ok || !v.status.Active() {
			// Closed mid-frame: join the workers, drop what they recorded.
			v.StopThreading()
			abortAll(tasks)
			return nil
		}
	} else {
		err = recordSerial(tasks, stamp)
	}
	if err != nil {
		abortAll(tasks)
		Logger().Warn("viewer: frame dropped", "frame", stamp.FrameCount, "err", err)
		return fmt.Errorf("record frame %d: %w", stamp.FrameCount, err)
	}

	for i, task := range tasks {
		if err := task.submit(); err != nil {
			abortAll(tasks[i+1:])
			Logger().Error("viewer: submit failed", "frame", stamp.FrameCount, "err", err)
			v.Close()
			return err
		}
	}
	v.presentable = true
	return nil
}

// recordSerial records tasks in order on the calling goroutine.
func recordSerial(tasks []*RecordAndSubmitTask, stamp FrameStamp) error {
	for _, task := range tasks {
		if err := task.prepare(stamp); err != nil {
			return err
		}
	}
	return nil
}

func abortAll(tasks []*RecordAndSubmitTask) {
	for _, task := range tasks {
		task.abort()
	}
}

// Present presents the current frame to every target, in order. It does
// nothing unless the frame was submitted.
//
// A target reporting ErrPresentationTargetLost is removed and the loop goes
// on. Any other error closes the viewer.
func (v *Viewer) Present() error {
	if !v.presentable {
		return nil
	}
	v.presentable = false
	stamp := v.FrameStamp()

	for _, t := range v.Targets() {
		err := t.Present(stamp)
		switch {
		case err == nil:
		case errors.Is(err, ErrPresentationTargetLost):
			v.RemovePresentationTarget(t)
			Logger().Warn("viewer: presentation target lost", "frame", stamp.FrameCount, "err", err)
			if v.opts.onTargetLost != nil {
				v.opts.onTargetLost(t, err)
			}
		default:
			Logger().Error("viewer: present failed", "frame", stamp.FrameCount, "err", err)
			v.Close()
			return fmt.Errorf("present frame %d: %w", stamp.FrameCount, err)
		}
	}
	return nil
}

// WaitForFences waits for the submissions of the frame relative frames
// before the current one. It returns an error wrapping ErrTimeout if any is
// still executing when timeout elapses. A zero timeout polls; WaitForever
// blocks until the device signals. Frames with no tracked submission count
// as complete.
func (v *Viewer) WaitForFences(relative int, timeout time.Duration) error {
	if relative < 0 {
		return fmt.Errorf("%w: negative relative frame index %d", ErrInvalidConfig, relative)
	}

	var deadline time.Time
	if timeout > 0 && timeout != WaitForever {
		deadline = time.Now().Add(timeout)
	}

	for _, task := range v.Tasks() {
		f := task.Fence(uint64(relative))
		if f == nil {
			continue
		}
		wait := timeout
		if !deadline.IsZero() {
			wait = max(time.Until(deadline), 0)
		}
		ok, err := f.Wait(wait)
		if err != nil {
			return fmt.Errorf("wait for fences of %s: %w", task.Label(), err)
		}
		if !ok {
			return fmt.Errorf("%w: %s, %d frames back", ErrTimeout, task.Label(), relative)
		}
	}
	return nil
}

// DeviceWaitIdle waits until every device used by the viewer's tasks has
// finished all submitted work, then retires the tasks' frames.
func (v *Viewer) DeviceWaitIdle() error {
	tasks := v.Tasks()

	var errs []error
	seen := make(map[Device]bool)
	for _, task := range tasks {
		d := task.Device()
		if seen[d] {
			continue
		}
		seen[d] = true
		if err := d.WaitIdle(); err != nil {
			errs = append(errs, fmt.Errorf("wait idle %s: %w", task.Label(), err))
		}
	}
	for _, task := range tasks {
		if err := task.retireSignaled(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Frame runs one iteration of the loop: advance, handle events, update,
// record and submit, present. It returns ErrInactiveViewer once the viewer
// is inactive.
//
// With Instrumentation set, FrameBegin runs after the advance and FrameEnd
// runs with the frame's result.
func (v *Viewer) Frame() (err error) {
	if !v.AdvanceToNextFrame(UseTimeSinceStart) {
		return ErrInactiveViewer
	}
	if in := v.opts.instrumentation; in != nil {
		stamp := v.FrameStamp()
		in.FrameBegin(stamp)
		defer func() { in.FrameEnd(stamp, err) }()
	}

	v.HandleEvents()
	v.Update()
	if err := v.RecordAndSubmit(); err != nil {
		return err
	}
	return v.Present()
}

// Run calls Frame until the viewer becomes inactive or ctx is done, which
// closes the viewer before Run returns. Frames that fail recoverably are
// logged and skipped. With a maximum frame rate set, frames are paced by a
// token bucket.
func (v *Viewer) Run(ctx context.Context) error {
	// Wakes a frame blocked in the barrier or a fence wait.
	stop := context.AfterFunc(ctx, v.Close)
	defer stop()

	var limiter *rate.Limiter
	if v.opts.maxFrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(v.opts.maxFrameRate), 1)
	}

	for {
		if ctx.Err() != nil {
			v.Close()
			return ctx.Err()
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// The next frame would start past the deadline.
				<-ctx.Done()
				v.Close()
				return ctx.Err()
			}
		}

		err := v.Frame()
		switch {
		case err == nil:
		case errors.Is(err, ErrInactiveViewer):
			if ctx.Err() != nil {
				v.Close()
			}
			return ctx.Err()
		case !v.status.Active():
			return err
		default:
			Logger().Warn("viewer: frame failed", "frame", v.FrameStamp().FrameCount, "err", err)
		}
	}
}
