package frameloop

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestViewer(t *testing.T, opts ...Option) *Viewer {
	t.Helper()
	opts = append([]Option{WithFenceTimeout(time.Second)}, opts...)
	v, err := NewViewer(opts...)
	if err != nil {
		t.Fatalf("NewViewer() error = %v", err)
	}
	t.Cleanup(func() { _ = v.Shutdown() })
	return v
}

func TestNewViewer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"retention equals in-flight", []Option{WithRetentionWindow(2), WithMaxFramesInFlight(2)}},
		{"retention below in-flight", []Option{WithRetentionWindow(3), WithMaxFramesInFlight(5)}},
		{"no frames in flight", []Option{WithMaxFramesInFlight(0)}},
		{"negative threads", []Option{WithThreads(-1)}},
		{"negative timeout", []Option{WithFenceTimeout(-time.Second)}},
		{"negative frame rate", []Option{WithMaxFrameRate(-1)}},
		{"nil clock", []Option{WithClock(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewViewer(tt.opts...); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewViewer() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := NewViewer(); err != nil {
		t.Errorf("NewViewer() with defaults error = %v", err)
	}
}

func TestViewer_InactiveWithoutTargets(t *testing.T) {
	v := newTestViewer(t)

	if v.Active() {
		t.Error("viewer without targets should be inactive")
	}
	if v.AdvanceToNextFrame(0) {
		t.Error("AdvanceToNextFrame() on inactive viewer = true")
	}
	if err := v.RecordAndSubmit(); err != nil {
		t.Errorf("RecordAndSubmit() on inactive viewer error = %v", err)
	}
	if err := v.Frame(); !errors.Is(err, ErrInactiveViewer) {
		t.Errorf("Frame() error = %v, want ErrInactiveViewer", err)
	}
	if got := v.FrameStamp(); got != (FrameStamp{}) {
		t.Errorf("FrameStamp() = %v, want zero", got)
	}
}

func TestViewer_FrameSequence(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks int
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 10 * time.Millisecond)
	}

	v := newTestViewer(t, WithClock(clock))
	target := &fakeTarget{}
	dev := &fakeDevice{autoSignal: true}
	v.AddPresentationTarget(target)
	v.AddTask(NewRecordAndSubmitTask("main", dev))

	for range 5 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}

	if got, want := target.frames(), []uint64{0, 1, 2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("presented frames = %v, want %v", got, want)
	}
	for i, s := range dev.submitted() {
		if s.epoch != uint64(i) {
			t.Errorf("submission %d epoch = %d", i, s.epoch)
		}
	}

	stamp := v.FrameStamp()
	if stamp.FrameCount != 4 {
		t.Errorf("FrameCount = %d, want 4", stamp.FrameCount)
	}
	if stamp.SimulationTime <= 0 {
		t.Errorf("SimulationTime = %v, want time since start", stamp.SimulationTime)
	}
}

func TestViewer_ExplicitSimulationTime(t *testing.T) {
	v := newTestViewer(t)
	v.AddPresentationTarget(&fakeTarget{})

	if !v.AdvanceToNextFrame(1.5) {
		t.Fatal("AdvanceToNextFrame() = false")
	}
	if got := v.FrameStamp().SimulationTime; got != 1.5 {
		t.Errorf("SimulationTime = %v, want 1.5", got)
	}
}

// TestViewer_ThreadedBarrier records four tasks on four workers with
// uneven recording times and checks nothing is submitted before all of them
// finished recording, and that submission follows task order.
func TestViewer_ThreadedBarrier(t *testing.T) {
	const workers, frames = 4, 8

	var recorded atomic.Int64
	var violations atomic.Int64
	dev := &fakeDevice{autoSignal: true}
	dev.onSubmit = func(cbs []CommandBuffer) {
		epoch := int64(cbs[0].Epoch()) //nolint:gosec // test frames are small
		if recorded.Load() < workers*(epoch+1) {
			violations.Add(1)
		}
	}

	v := newTestViewer(t, WithThreads(workers))
	v.AddPresentationTarget(&fakeTarget{})
	for i := range workers {
		v.AddTask(NewRecordAndSubmitTask(fmt.Sprintf("task%d", i), dev,
			CommandGraphFunc(func(_ CommandBuffer, stamp FrameStamp) error {
				time.Sleep(time.Duration((i+int(stamp.FrameCount))%workers) * time.Millisecond)
				recorded.Add(1)
				return nil
			})))
	}
	v.SetupThreading()
	if !v.Threaded() {
		t.Fatal("Threaded() = false after SetupThreading")
	}

	for range frames {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}

	if n := violations.Load(); n != 0 {
		t.Errorf("%d submissions happened before every task recorded", n)
	}
	subs := dev.submitted()
	if len(subs) != workers*frames {
		t.Fatalf("submissions = %d, want %d", len(subs), workers*frames)
	}
	for i, s := range subs {
		if want := fmt.Sprintf("task%d", i%workers); s.label != want {
			t.Fatalf("submission %d label = %q, want %q", i, s.label, want)
		}
		if want := uint64(i / workers); s.epoch != want {
			t.Fatalf("submission %d epoch = %d, want %d", i, s.epoch, want)
		}
	}
}

func TestViewer_WaitForFencesTimeout(t *testing.T) {
	v := newTestViewer(t, WithRetentionWindow(4), WithMaxFramesInFlight(3))
	dev := &fakeDevice{}
	v.AddPresentationTarget(&fakeTarget{})
	v.AddTask(NewRecordAndSubmitTask("main", dev))

	for range 3 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}

	start := time.Now()
	err := v.WaitForFences(2, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitForFences(2, 0) error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("WaitForFences(2, 0) took %v, want immediate", elapsed)
	}

	if err := v.WaitForFences(0, 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitForFences(0, 10ms) error = %v, want ErrTimeout", err)
	}

	dev.signalAll()
	if err := v.WaitForFences(2, 0); err != nil {
		t.Errorf("WaitForFences(2, 0) after completion error = %v", err)
	}
	if err := v.WaitForFences(2, WaitForever); err != nil {
		t.Errorf("WaitForFences(2, WaitForever) error = %v", err)
	}
	if err := v.WaitForFences(10, 0); err != nil {
		t.Errorf("WaitForFences for an untracked frame error = %v, want nil", err)
	}
	if err := v.WaitForFences(-1, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WaitForFences(-1) error = %v, want ErrInvalidConfig", err)
	}
}

func TestViewer_CloseIsIdempotent(t *testing.T) {
	v := newTestViewer(t, WithThreads(2))
	dev := &fakeDevice{autoSignal: true}
	v.AddPresentationTarget(&fakeTarget{})
	v.AddTask(NewRecordAndSubmitTask("a", dev))
	v.AddTask(NewRecordAndSubmitTask("b", dev))
	v.SetupThreading()

	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}

	v.Close()
	v.Close()
	v.StopThreading()
	v.StopThreading()

	if v.Active() {
		t.Error("Active() after Close = true")
	}
	if v.Threaded() {
		t.Error("Threaded() after StopThreading = true")
	}
	if err := v.Frame(); !errors.Is(err, ErrInactiveViewer) {
		t.Errorf("Frame() after Close error = %v, want ErrInactiveViewer", err)
	}
	if err := v.Compile(context.Background(), ResourceHints{}); !errors.Is(err, ErrInactiveViewer) {
		t.Errorf("Compile() after Close error = %v, want ErrInactiveViewer", err)
	}

	done := make(chan struct{})
	go func() {
		v.DeleteQueue().WaitThenClear()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitThenClear did not return after Close")
	}
}

func TestViewer_CloseDuringThreadedFrame(t *testing.T) {
	v := newTestViewer(t, WithThreads(2))
	dev := &fakeDevice{autoSignal: true}
	v.AddPresentationTarget(&fakeTarget{})

	release := make(chan struct{})
	v.AddTask(NewRecordAndSubmitTask("fast", dev))
	v.AddTask(NewRecordAndSubmitTask("slow", dev, CommandGraphFunc(func(CommandBuffer, FrameStamp) error {
		<-release
		return nil
	})))
	v.SetupThreading()

	go func() {
		time.Sleep(20 * time.Millisecond)
		v.Close()
		close(release)
	}()

	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if n := len(dev.submitted()); n != 0 {
		t.Errorf("submitted %d command buffers after close, want 0", n)
	}
	if v.Threaded() {
		t.Error("workers should be stopped after a cancelled frame")
	}
}

func TestViewer_RecordFailureRollsBack(t *testing.T) {
	for _, threads := range []int{0, 2} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			v := newTestViewer(t, WithThreads(threads))
			target := &fakeTarget{}
			dev := &fakeDevice{autoSignal: true}
			v.AddPresentationTarget(target)

			boom := errors.New("boom")
			v.AddTask(NewRecordAndSubmitTask("ok", dev))
			v.AddTask(NewRecordAndSubmitTask("flaky", dev, CommandGraphFunc(func(_ CommandBuffer, stamp FrameStamp) error {
				if stamp.FrameCount == 1 {
					return boom
				}
				return nil
			})))
			v.SetupThreading()

			if err := v.Frame(); err != nil {
				t.Fatalf("frame 0 error = %v", err)
			}
			if err := v.Frame(); !errors.Is(err, boom) {
				t.Fatalf("frame 1 error = %v, want %v", err, boom)
			}
			if !v.Active() {
				t.Fatal("record failure must not close the viewer")
			}
			if err := v.Frame(); err != nil {
				t.Fatalf("frame 2 error = %v", err)
			}

			for _, s := range dev.submitted() {
				if s.epoch == 1 {
					t.Errorf("%s submitted for the failed frame", s.label)
				}
			}
			if got, want := target.frames(), []uint64{0, 2}; !slices.Equal(got, want) {
				t.Errorf("presented frames = %v, want %v", got, want)
			}
		})
	}
}

func TestViewer_SubmitFailureCloses(t *testing.T) {
	v := newTestViewer(t)
	dev := &fakeDevice{submitErr: errors.New("device lost")}
	target := &fakeTarget{}
	v.AddPresentationTarget(target)
	v.AddTask(NewRecordAndSubmitTask("main", dev))

	if err := v.Frame(); err == nil {
		t.Fatal("Frame() should fail")
	}
	if v.Active() {
		t.Error("submit failure should close the viewer")
	}
	if len(target.frames()) != 0 {
		t.Error("a frame that failed to submit must not be presented")
	}
}

func TestViewer_PresentationTargetLost(t *testing.T) {
	var lost []PresentationTarget
	v := newTestViewer(t, WithTargetLostHandler(func(target PresentationTarget, err error) {
		if !errors.Is(err, ErrPresentationTargetLost) {
			t.Errorf("handler error = %v", err)
		}
		lost = append(lost, target)
	}))

	bad := &fakeTarget{err: fmt.Errorf("surface: %w", ErrPresentationTargetLost)}
	good := &fakeTarget{}
	v.AddPresentationTarget(bad)
	v.AddPresentationTarget(good)
	v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))

	for range 2 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}

	if len(lost) != 1 || lost[0] != bad {
		t.Errorf("lost targets = %v, want [bad]", lost)
	}
	if targets := v.Targets(); len(targets) != 1 || targets[0] != good {
		t.Errorf("Targets() = %v, want [good]", targets)
	}
	if got := good.frames(); !slices.Equal(got, []uint64{0, 1}) {
		t.Errorf("good target presented %v, want [0 1]", got)
	}
	if !v.Active() {
		t.Error("viewer should stay active with a remaining target")
	}

	if v.RemovePresentationTarget(bad) {
		t.Error("RemovePresentationTarget of a removed target = true")
	}
	v.RemovePresentationTarget(good)
	if v.Active() {
		t.Error("viewer without targets should be inactive")
	}
}

func TestViewer_PresentFailureCloses(t *testing.T) {
	v := newTestViewer(t)
	v.AddPresentationTarget(&fakeTarget{err: errors.New("swapchain broken")})
	v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))

	if err := v.Frame(); err == nil {
		t.Fatal("Frame() should fail")
	}
	if v.Active() {
		t.Error("present failure should close the viewer")
	}
}

func TestViewer_DeleteQueueRetention(t *testing.T) {
	v := newTestViewer(t, WithRetentionWindow(3))
	v.AddPresentationTarget(&fakeTarget{})

	if !v.AdvanceToNextFrame(0) {
		t.Fatal("AdvanceToNextFrame() = false")
	}
	res := newFakeBuffer(4)
	v.DeleteQueue().Add(res)

	for frame := uint64(1); frame <= 3; frame++ {
		if res.releases.Load() != 0 {
			t.Fatalf("released before frame %d", frame)
		}
		v.AdvanceToNextFrame(0)
	}
	if res.releases.Load() != 1 {
		t.Errorf("released %d times at frame 3, want 1", res.releases.Load())
	}
}

// TestViewer_DeleteQueueWaitsForTimedOutFrame drops frames while the fence
// of frame 0 times out. An object queued in frame 0 must outlive its
// retention window until frame 0 retires.
func TestViewer_DeleteQueueWaitsForTimedOutFrame(t *testing.T) {
	v := newTestViewer(t, WithFenceTimeout(time.Millisecond))
	dev := &fakeDevice{}
	v.AddPresentationTarget(&fakeTarget{})
	v.AddTask(NewRecordAndSubmitTask("main", dev))

	res := newFakeBuffer(4)
	v.AddUpdateOperation(UpdateFunc(func(FrameStamp) {
		v.DeleteQueue().Add(res)
	}), RunOnce)

	for frame := range 5 {
		err := v.Frame()
		switch frame {
		case 0, 1:
			if err != nil {
				t.Fatalf("frame %d: Frame() error = %v", frame, err)
			}
		default:
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("frame %d: Frame() error = %v, want ErrTimeout", frame, err)
			}
		}
		if res.releases.Load() != 0 {
			t.Fatalf("released at frame %d while frame 0 is still executing", frame)
		}
	}

	dev.signalAll()
	// Frame 5 retires frames 0 and 1; frame 6 may release.
	for range 2 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() after signal error = %v", err)
		}
	}
	if res.releases.Load() != 1 {
		t.Errorf("released %d times after frame 0 retired, want 1", res.releases.Load())
	}
	if n := v.DeleteQueue().Violations(); n != 0 {
		t.Errorf("Violations() = %d, want 0", n)
	}
}

func TestViewer_Events(t *testing.T) {
	v := newTestViewer(t)
	v.AddPresentationTarget(&fakeTarget{})
	v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))

	events := NewEventQueue(8)
	v.AddEventSource(events)

	var kinds []EventKind
	v.AddEventHandler(EventHandlerFunc(func(e Event) { kinds = append(kinds, e.Kind) }))
	v.AddEventHandler(CloseHandler(v))

	events.Push(Event{Kind: EventKeyPress, Data: "space"})
	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if len(v.Events()) != 1 {
		t.Errorf("Events() = %v, want 1 event", v.Events())
	}

	// The previous frame's events are discarded by the next poll.
	if v.PollEvents(true) {
		t.Error("PollEvents() with no new events = true")
	}

	events.Push(Event{Kind: EventCloseRequest})
	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if v.Active() {
		t.Error("close request should close the viewer")
	}
	if want := []EventKind{EventKeyPress, EventCloseRequest}; !slices.Equal(kinds, want) {
		t.Errorf("handled kinds = %v, want %v", kinds, want)
	}
}

func TestViewer_UpdateOperations(t *testing.T) {
	v := newTestViewer(t)
	v.AddPresentationTarget(&fakeTarget{})

	var once, every []uint64
	v.AddUpdateOperation(UpdateFunc(func(s FrameStamp) { once = append(once, s.FrameCount) }), RunOnce)
	v.AddUpdateOperation(UpdateFunc(func(s FrameStamp) { every = append(every, s.FrameCount) }), RunEveryFrame)

	for range 3 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}

	if !slices.Equal(once, []uint64{0}) {
		t.Errorf("RunOnce ran at %v, want [0]", once)
	}
	if !slices.Equal(every, []uint64{0, 1, 2}) {
		t.Errorf("RunEveryFrame ran at %v, want [0 1 2]", every)
	}
}

// countingCompiler counts Compile calls and the peak concurrency.
type countingCompiler struct {
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	err     error
}

func (c *countingCompiler) Compile(_ context.Context, _ CommandGraph, _ ResourceHints) error {
	c.calls.Add(1)
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.err
}

func TestViewer_Compile(t *testing.T) {
	noop := CommandGraphFunc(func(CommandBuffer, FrameStamp) error { return nil })

	t.Run("all graphs", func(t *testing.T) {
		c := &countingCompiler{}
		v := newTestViewer(t, WithCompiler(c), WithThreads(2))
		dev := &fakeDevice{autoSignal: true}
		v.AddTask(NewRecordAndSubmitTask("a", dev, noop, noop, noop))
		v.AddTask(NewRecordAndSubmitTask("b", dev, noop))

		if err := v.Compile(context.Background(), ResourceHints{StagingBytes: 1024}); err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if got := c.calls.Load(); got != 4 {
			t.Errorf("Compile calls = %d, want 4", got)
		}
		if got := c.peak.Load(); got > 2 {
			t.Errorf("peak concurrency = %d, want <= 2", got)
		}
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		v := newTestViewer(t, WithCompiler(&countingCompiler{err: boom}))
		v.AddTask(NewRecordAndSubmitTask("a", &fakeDevice{}, noop))
		if err := v.Compile(context.Background(), ResourceHints{}); !errors.Is(err, boom) {
			t.Errorf("Compile() error = %v, want %v", err, boom)
		}
	})

	t.Run("no compiler", func(t *testing.T) {
		v := newTestViewer(t)
		v.AddTask(NewRecordAndSubmitTask("a", &fakeDevice{}, noop))
		if err := v.Compile(context.Background(), ResourceHints{}); err != nil {
			t.Errorf("Compile() error = %v", err)
		}
	})
}

func TestViewer_RunPacedUntilCancelled(t *testing.T) {
	v := newTestViewer(t, WithMaxFrameRate(100))
	target := &fakeTarget{}
	v.AddPresentationTarget(target)
	v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := v.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if v.Active() {
		t.Error("Run should close the viewer when the context ends")
	}

	n := len(target.frames())
	if n == 0 || n > 20 {
		t.Errorf("presented %d frames in 100ms at 100 fps", n)
	}
}

func TestViewer_RunClosesBeforeReturning(t *testing.T) {
	for i := range 50 {
		v := newTestViewer(t, WithMaxFrameRate(1000))
		v.AddPresentationTarget(&fakeTarget{})
		v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
		err := v.Run(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("run %d: Run() error = %v, want DeadlineExceeded", i, err)
		}
		if v.Active() || v.Status().Active() {
			t.Fatalf("run %d: viewer still active after Run returned", i)
		}
	}
}

func TestViewer_RunStopsWhenClosed(t *testing.T) {
	v := newTestViewer(t)
	v.AddPresentationTarget(&fakeTarget{})
	v.AddTask(NewRecordAndSubmitTask("main", &fakeDevice{autoSignal: true}))
	v.AddUpdateOperation(UpdateFunc(func(s FrameStamp) {
		if s.FrameCount == 10 {
			v.Close()
		}
	}), RunEveryFrame)

	if err := v.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if got := v.FrameStamp().FrameCount; got != 10 {
		t.Errorf("stopped at frame %d, want 10", got)
	}
}

func TestViewer_DeviceWaitIdle(t *testing.T) {
	v := newTestViewer(t)
	dev := &fakeDevice{}
	v.AddPresentationTarget(&fakeTarget{})
	task := NewRecordAndSubmitTask("main", dev)
	v.AddTask(task)

	for range 2 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}
	if task.InFlight() != 2 {
		t.Fatalf("InFlight() = %d, want 2", task.InFlight())
	}

	if err := v.DeviceWaitIdle(); err != nil {
		t.Fatalf("DeviceWaitIdle() error = %v", err)
	}
	if task.InFlight() != 0 {
		t.Errorf("InFlight() after DeviceWaitIdle = %d, want 0", task.InFlight())
	}
	for _, s := range dev.submitted() {
		if s.fence.released.Load() != 1 {
			t.Errorf("fence of frame %d released %d times", s.epoch, s.fence.released.Load())
		}
	}
}

func TestViewer_AddTaskRestartsThreading(t *testing.T) {
	v := newTestViewer(t, WithThreads(4))
	dev := &fakeDevice{autoSignal: true}
	v.AddPresentationTarget(&fakeTarget{})
	v.SetupThreading()

	var mu sync.Mutex
	seen := map[string]int{}
	for _, name := range []string{"a", "b"} {
		v.AddTask(NewRecordAndSubmitTask(name, dev, CommandGraphFunc(func(CommandBuffer, FrameStamp) error {
			mu.Lock()
			seen[name]++
			mu.Unlock()
			return nil
		})))
	}
	if !v.Threaded() {
		t.Fatal("Threaded() = false")
	}

	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != 1 || seen["b"] != 1 {
		t.Errorf("recorded = %v, want each task once", seen)
	}
}

// recordingInstrumentation logs hook calls.
type recordingInstrumentation struct {
	calls []string
}

func (r *recordingInstrumentation) FrameBegin(stamp FrameStamp) {
	r.calls = append(r.calls, fmt.Sprintf("begin %d", stamp.FrameCount))
}

func (r *recordingInstrumentation) FrameEnd(stamp FrameStamp, err error) {
	r.calls = append(r.calls, fmt.Sprintf("end %d %v", stamp.FrameCount, err != nil))
}

func TestViewer_Instrumentation(t *testing.T) {
	in := &recordingInstrumentation{}
	v := newTestViewer(t, WithInstrumentation(in))
	v.AddPresentationTarget(&fakeTarget{})
	dev := &fakeDevice{autoSignal: true}
	v.AddTask(NewRecordAndSubmitTask("main", dev))

	if err := v.Frame(); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	dev.submitErr = errors.New("device lost")
	if err := v.Frame(); err == nil {
		t.Fatal("Frame() should report the submit failure")
	}
	if err := v.Frame(); !errors.Is(err, ErrInactiveViewer) {
		t.Fatalf("Frame() on closed viewer error = %v", err)
	}

	want := []string{"begin 0", "end 0 false", "begin 1", "end 1 true"}
	if !slices.Equal(in.calls, want) {
		t.Errorf("calls = %v, want %v", in.calls, want)
	}
}

func TestFrameTimer(t *testing.T) {
	timer := &FrameTimer{}
	v := newTestViewer(t, WithInstrumentation(timer))
	v.AddPresentationTarget(&fakeTarget{})
	v.AddUpdateOperation(UpdateFunc(func(FrameStamp) { time.Sleep(time.Millisecond) }), RunEveryFrame)

	for range 3 {
		if err := v.Frame(); err != nil {
			t.Fatalf("Frame() error = %v", err)
		}
	}
	last, n := timer.Last()
	if n != 3 {
		t.Errorf("timed %d frames, want 3", n)
	}
	if last < time.Millisecond {
		t.Errorf("Last() = %v, want at least the update's sleep", last)
	}
}
