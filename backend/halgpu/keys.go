//go:build !nogpu

package halgpu

import (
	"time"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/gpucontext"
)

// defaultKeyQueue is the number of key events buffered between polls.
const defaultKeyQueue = 64

// KeyPress is the Data of frameloop.EventKeyPress events.
type KeyPress struct {
	Key       gpucontext.Key
	Modifiers gpucontext.Modifiers
}

// keyPressSource is the part of a gpucontext event source KeyEvents uses.
type keyPressSource interface {
	OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers))
}

// KeyEvents turns the key callbacks of a window event source into
// frameloop events delivered at the next poll.
type KeyEvents struct {
	queue    *frameloop.EventQueue
	closeKey gpucontext.Key
	hasClose bool
	now      func() time.Time
}

// KeyEventsOption configures KeyEvents.
type KeyEventsOption func(*KeyEvents)

// WithCloseKey makes a press of key also emit frameloop.EventCloseRequest.
func WithCloseKey(key gpucontext.Key) KeyEventsOption {
	return func(k *KeyEvents) {
		k.closeKey = key
		k.hasClose = true
	}
}

// NewKeyEvents subscribes to the key presses of src.
func NewKeyEvents(src keyPressSource, opts ...KeyEventsOption) *KeyEvents {
	k := &KeyEvents{
		queue: frameloop.NewEventQueue(defaultKeyQueue),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	src.OnKeyPress(k.press)
	return k
}

func (k *KeyEvents) press(key gpucontext.Key, mods gpucontext.Modifiers) {
	now := k.now()
	k.queue.Push(frameloop.Event{
		Kind: frameloop.EventKeyPress,
		Time: now,
		Data: KeyPress{Key: key, Modifiers: mods},
	})
	if k.hasClose && key == k.closeKey {
		k.queue.Push(frameloop.Event{Kind: frameloop.EventCloseRequest, Time: now})
	}
}

// PollEvents returns the key events received since the previous call.
func (k *KeyEvents) PollEvents() []frameloop.Event {
	return k.queue.PollEvents()
}

var _ frameloop.EventSource = (*KeyEvents)(nil)
