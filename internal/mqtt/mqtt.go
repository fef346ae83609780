// Package mqtt publishes button and system events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/button-blinker/internal/events"
)

// Topics are the topics one daemon instance publishes on.
type Topics struct {
	Events string // press and output events
	System string // lifecycle, heartbeat, will
}

// NewTopics returns <prefix>/<clientID>/events and <prefix>/<clientID>/system.
func NewTopics(prefix, clientID string) Topics {
	base := prefix + "/" + clientID
	return Topics{Events: base + "/events", System: base + "/system"}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a coordinator event. Failure must not stop the daemon.
	Publish(event events.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// System event names.
const (
	SystemStartup     = "STARTUP"
	SystemShutdown    = "SHUTDOWN"
	SystemHeartbeat   = "HEARTBEAT"
	SystemReconnected = "RECONNECTED"
	SystemOffline     = "OFFLINE"
)

// SystemEvent is a daemon lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // if set, sent as is (full status snapshots)
	Retained   bool
}

// Payload is the message body of an event.
type Payload struct {
	Blinker EventPayload `json:"blinker"`
}

// EventPayload carries one coordinator event.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Channel   int    `json:"channel,omitempty"`
	Blinking  *bool  `json:"blinking,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

// EventName returns the wire name of a coordinator event.
func EventName(event events.Event) string {
	switch e := event.(type) {
	case events.PressEvent:
		return "PRESS"
	case events.OutputEvent:
		if e.Active {
			return "OUTPUT_ON"
		}
		return "OUTPUT_OFF"
	case events.SettleEvent:
		if e.Open {
			return "SETTLE_OPEN"
		}
		return "SETTLE_CLOSED"
	default:
		return ""
	}
}

// FormatPayload creates the JSON payload for a coordinator event.
func FormatPayload(event events.Event) ([]byte, error) {
	p := EventPayload{Event: EventName(event)}
	switch e := event.(type) {
	case events.PressEvent:
		p.Timestamp = stamp(e.Time)
		p.Channel = e.Channel
		p.Blinking = &e.Blinking
	case events.OutputEvent:
		p.Timestamp = stamp(e.Time)
		p.Channel = e.Channel
		p.Active = &e.Active
	case events.SettleEvent:
		p.Timestamp = stamp(e.Time)
	default:
		return nil, fmt.Errorf("unsupported event %T", event)
	}
	return json.Marshal(Payload{Blinker: p})
}

// SystemPayload is the message body of a simple system event (will,
// reconnect, shutdown) that carries no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// RawPayload, if set, is returned unchanged.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: stamp(event.Timestamp),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
