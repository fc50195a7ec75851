package simulated

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/frameloop"
)

// Window is a presentation target and event source. It records presented
// frames and can be told to request closing or to lose its surface.
type Window struct {
	name   string
	events *frameloop.EventQueue

	mu        sync.Mutex
	presented []uint64
	lost      bool
}

// NewWindow creates a window.
func NewWindow(name string) *Window {
	return &Window{name: name, events: frameloop.NewEventQueue(16)}
}

// Present records stamp. It fails with frameloop.ErrPresentationTargetLost
// once Lose was called.
func (w *Window) Present(stamp frameloop.FrameStamp) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lost {
		return fmt.Errorf("simulated: window %q: %w", w.name, frameloop.ErrPresentationTargetLost)
	}
	w.presented = append(w.presented, stamp.FrameCount)
	return nil
}

// PollEvents returns the events posted since the previous call.
func (w *Window) PollEvents() []frameloop.Event {
	return w.events.PollEvents()
}

// RequestClose posts a close request, as a window manager would.
func (w *Window) RequestClose() {
	w.events.Push(frameloop.Event{Kind: frameloop.EventCloseRequest, Time: time.Now()})
}

// Resize posts a resize event carrying the new size as [2]int.
func (w *Window) Resize(width, height int) {
	w.events.Push(frameloop.Event{Kind: frameloop.EventResize, Time: time.Now(), Data: [2]int{width, height}})
}

// Lose makes every later Present fail.
func (w *Window) Lose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lost = true
}

// Presented returns the frames presented so far.
func (w *Window) Presented() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint64, len(w.presented))
	copy(out, w.presented)
	return out
}

// String returns the window name.
func (w *Window) String() string {
	return w.name
}

var (
	_ frameloop.PresentationTarget = (*Window)(nil)
	_ frameloop.EventSource        = (*Window)(nil)
)
