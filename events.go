package frameloop

import (
	"fmt"
	"time"
)

// EventKind identifies the type of an Event.
type EventKind int

// Event kinds.
const (
	// EventCustom is an application defined event; Data carries the payload.
	EventCustom EventKind = iota

	// EventCloseRequest asks the viewer to stop.
	EventCloseRequest

	// EventKeyPress and EventKeyRelease carry a backend specific key in Data.
	EventKeyPress
	EventKeyRelease

	// EventResize reports a presentation target size change.
	EventResize
)

// String returns the name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCustom:
		return "Custom"
	case EventCloseRequest:
		return "CloseRequest"
	case EventKeyPress:
		return "KeyPress"
	case EventKeyRelease:
		return "KeyRelease"
	case EventResize:
		return "Resize"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Event is an input or window-system event delivered to the viewer.
type Event struct {
	Kind EventKind
	Time time.Time
	Data any
}

// EventSource produces events. PollEvents returns the events received since
// the previous call.
type EventSource interface {
	PollEvents() []Event
}

// EventHandler consumes events.
type EventHandler interface {
	HandleEvent(e Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(e Event)

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(e Event) { f(e) }

// CloseHandler returns a handler that closes v on EventCloseRequest.
func CloseHandler(v *Viewer) EventHandler {
	return EventHandlerFunc(func(e Event) {
		if e.Kind == EventCloseRequest {
			Logger().Info("viewer: close requested")
			v.Close()
		}
	})
}

// EventQueue is an EventSource fed by Push. It is safe for concurrent use,
// so producers on other goroutines can post events to the driving goroutine.
type EventQueue struct {
	ch chan Event
}

// NewEventQueue creates a queue that buffers up to capacity events.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{ch: make(chan Event, max(capacity, 1))}
}

// Push enqueues e and reports whether it fit.
func (q *EventQueue) Push(e Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		Logger().Warn("events: queue full, dropping event", "kind", e.Kind)
		return false
	}
}

// PollEvents drains the queue.
func (q *EventQueue) PollEvents() []Event {
	var out []Event
	for {
		select {
		case e := <-q.ch:
			out = append(out, e)
		default:
			return out
		}
	}
}
