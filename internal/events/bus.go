// Package events fans coordinator observations out to the daemon's
// consumers (MQTT, metrics, status, logs) without blocking the publisher.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
	now        func() time.Time
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
		now:        time.Now,
	}
}

// Publish publishes an event to all subscribers.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PressEvent:
		event.Publish(b.dispatcher, e)
	case OutputEvent:
		event.Publish(b.dispatcher, e)
	case SettleEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler type
// selects the events it receives. Returns an unsubscribe function; unknown
// handler types get a no-op.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PressEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettleEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Pressed publishes a PressEvent.
func (b *Bus) Pressed(channel int, blinking bool) {
	b.Publish(PressEvent{Channel: channel, Blinking: blinking, Time: b.now()})
}

// OutputChanged publishes an OutputEvent.
func (b *Bus) OutputChanged(channel int, active bool) {
	b.Publish(OutputEvent{Channel: channel, Active: active, Time: b.now()})
}

// SettleChanged publishes a SettleEvent.
func (b *Bus) SettleChanged(open bool) {
	b.Publish(SettleEvent{Open: open, Time: b.now()})
}
