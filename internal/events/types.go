package events

import "time"

// Event type constants for kelindar/event.
const (
	TypePress uint32 = iota + 1
	TypeOutput
	TypeSettle
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PressEvent is a recognised button press.
type PressEvent struct {
	Channel  int       `json:"channel"`
	Blinking bool      `json:"blinking"` // action timer armed after the press
	Time     time.Time `json:"time"`
}

// Type returns the event type identifier for PressEvent.
func (e PressEvent) Type() uint32 { return TypePress }

// OutputEvent is a change of an output line driven by the coordinator.
type OutputEvent struct {
	Channel int       `json:"channel"`
	Active  bool      `json:"active"`
	Time    time.Time `json:"time"`
}

// Type returns the event type identifier for OutputEvent.
func (e OutputEvent) Type() uint32 { return TypeOutput }

// SettleEvent marks the start (Open) or end of a debounce window.
type SettleEvent struct {
	Open bool      `json:"open"`
	Time time.Time `json:"time"`
}

// Type returns the event type identifier for SettleEvent.
func (e SettleEvent) Type() uint32 { return TypeSettle }
