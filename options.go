package frameloop

import (
	"fmt"
	"time"
)

// Default frame loop settings.
const (
	// DefaultMaxFramesInFlight is how many submitted frames may be
	// executing on the device while the next one is recorded.
	DefaultMaxFramesInFlight = 2

	// DefaultFenceTimeout bounds the wait for a frame slot to free up.
	DefaultFenceTimeout = 5 * time.Second
)

// Option configures a Viewer during creation.
//
// Example:
//
//	v, err := frameloop.NewViewer(
//		frameloop.WithThreads(4),
//		frameloop.WithMaxFrameRate(60),
//	)
type Option func(*options)

// options holds optional configuration for Viewer creation.
type options struct {
	retentionWindow   uint64
	maxFramesInFlight int
	threads           int
	fenceTimeout      time.Duration
	compiler          Compiler
	maxFrameRate      float64
	clock             func() time.Time
	onTargetLost      func(PresentationTarget, error)
	instrumentation   Instrumentation
}

// defaultOptions returns the default viewer options.
func defaultOptions() options {
	return options{
		retentionWindow:   DefaultRetentionWindow,
		maxFramesInFlight: DefaultMaxFramesInFlight,
		fenceTimeout:      DefaultFenceTimeout,
		clock:             time.Now,
	}
}

// validate reports inconsistent settings.
func (o *options) validate() error {
	switch {
	case o.maxFramesInFlight < 1:
		return fmt.Errorf("%w: max frames in flight %d < 1", ErrInvalidConfig, o.maxFramesInFlight)
	case o.retentionWindow <= uint64(o.maxFramesInFlight):
		// A resource dropped in frame F may still be referenced by the
		// submission of frame F, whose fence is first waited on when frame
		// F+maxFramesInFlight is recorded.
		return fmt.Errorf("%w: retention window %d must exceed max frames in flight %d",
			ErrInvalidConfig, o.retentionWindow, o.maxFramesInFlight)
	case o.threads < 0:
		return fmt.Errorf("%w: negative thread count %d", ErrInvalidConfig, o.threads)
	case o.fenceTimeout < 0:
		return fmt.Errorf("%w: negative fence timeout", ErrInvalidConfig)
	case o.maxFrameRate < 0:
		return fmt.Errorf("%w: negative frame rate", ErrInvalidConfig)
	case o.clock == nil:
		return fmt.Errorf("%w: nil clock", ErrInvalidConfig)
	}
	return nil
}

// WithRetentionWindow sets how many frames a dropped resource is kept alive
// in the viewer's DeleteQueue. It must exceed the max frames in flight.
func WithRetentionWindow(frames uint64) Option {
	return func(o *options) {
		o.retentionWindow = frames
	}
}

// WithMaxFramesInFlight sets how many submitted frames may execute on the
// device concurrently with recording.
func WithMaxFramesInFlight(n int) Option {
	return func(o *options) {
		o.maxFramesInFlight = n
	}
}

// WithThreads sets the number of recording workers used by SetupThreading.
// Zero, the default, records every task on the driving goroutine.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// WithFenceTimeout bounds how long recording waits for a frame slot.
// Use WaitForever to disable the bound.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fenceTimeout = d
	}
}

// WithCompiler sets the collaborator that prepares device resources in
// Compile.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithMaxFrameRate caps the rate at which Run produces frames.
// Zero means unlimited.
func WithMaxFrameRate(fps float64) Option {
	return func(o *options) {
		o.maxFrameRate = fps
	}
}

// WithClock replaces time.Now as the frame stamp clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithTargetLostHandler registers a callback invoked after a presentation
// target reported ErrPresentationTargetLost and was removed.
func WithTargetLostHandler(fn func(target PresentationTarget, err error)) Option {
	return func(o *options) {
		o.onTargetLost = fn
	}
}

// WithInstrumentation sets the hooks called around every Frame.
func WithInstrumentation(in Instrumentation) Option {
	return func(o *options) {
		o.instrumentation = in
	}
}
