package frameloop

import (
	"errors"

	"github.com/gogpu/frameloop/threading"
)

// threadingSession is one generation of recording workers. It is replaced
// whenever the task set changes.
type threadingSession struct {
	status  *threading.Status
	gate    *threading.FrameGate
	barrier *threading.Barrier
	workers *threading.Workers

	// assigned[i] are the tasks recorded by worker i.
	assigned [][]*RecordAndSubmitTask

	// errs[i] is written by worker i before it reaches the barrier and read
	// by the driving goroutine after it.
	errs []error
}

// SetupThreading starts the recording workers. Tasks are spread over
// min(threads, tasks) workers, task i going to worker i modulo that count.
// It does nothing when the viewer was created without threads, is closed,
// or threading is already running.
func (v *Viewer) SetupThreading() {
	if v.opts.threads == 0 {
		Logger().Debug("viewer: threading disabled")
		return
	}

	v.mu.Lock()
	v.threaded = true
	if v.session != nil || !v.status.Active() {
		v.mu.Unlock()
		return
	}
	tasks := v.tasks
	v.mu.Unlock()

	n := min(v.opts.threads, len(tasks))
	if n == 0 {
		return
	}

	status := threading.NewStatus()
	s := &threadingSession{
		status:   status,
		gate:     threading.NewFrameGate(status),
		barrier:  threading.NewBarrier(n+1, status),
		assigned: make([][]*RecordAndSubmitTask, n),
		errs:     make([]error, n),
	}
	for i, task := range tasks {
		s.assigned[i%n] = append(s.assigned[i%n], task)
	}
	s.workers = threading.StartWorkers(n, status, func(id int) {
		v.recordLoop(s, id)
	})

	v.mu.Lock()
	v.session = s
	v.mu.Unlock()

	// Close may have raced with the setup and missed the session.
	if !v.status.Active() {
		v.StopThreading()
		return
	}
	Logger().Info("viewer: threading started", "workers", n, "tasks", len(tasks))
}

// StopThreading stops and joins the recording workers. It is idempotent.
func (v *Viewer) StopThreading() {
	v.mu.Lock()
	s := v.session
	v.session = nil
	v.threaded = false
	v.mu.Unlock()

	if s == nil {
		return
	}
	s.workers.Stop()
	Logger().Info("viewer: threading stopped", "workers", s.workers.Len())
}

// Threaded reports whether SetupThreading was called and not stopped.
func (v *Viewer) Threaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.threaded
}

// recordLoop is the body of worker id: wait for a frame, record the
// assigned tasks, meet the driving goroutine at the barrier.
func (v *Viewer) recordLoop(s *threadingSession, id int) {
	var generation uint64
	for {
		_, next, ok := s.gate.Wait(generation)
		if !ok {
			return
		}
		generation = next

		stamp := v.FrameStamp()
		var errs []error
		for _, task := range s.assigned[id] {
			if err := task.prepare(stamp); err != nil {
				errs = append(errs, err)
			}
		}
		s.errs[id] = errors.Join(errs...)

		if !s.barrier.ArriveAndWait() {
			return
		}
	}
}

// recordThreaded publishes the frame to the workers and waits at the barrier
// until all of them have recorded. It returns false if the session was
// cancelled before everyone arrived.
func (*Viewer) recordThreaded(s *threadingSession, stamp FrameStamp) (bool, error) {
	if !s.gate.Set(stamp.FrameCount) || !s.barrier.ArriveAndWait() {
		return false, nil
	}

	err := errors.Join(s.errs...)
	clear(s.errs)
	return true, err
}
