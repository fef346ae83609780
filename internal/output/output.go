// Package output drives digital output lines such as LEDs.
package output

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/button-blinker/internal/gpio"
)

// sleep is the delay used by Blink; tests replace it.
var sleep = time.Sleep

// Line is one output line. The cached state always reflects the last
// commanded value; it is never read back from the hardware.
type Line struct {
	pin    gpio.OutputPin
	number int
	port   gpio.Port
	bit    uint8
	active atomic.Bool
}

// Option configures a Line.
type Option func(*options)

type options struct {
	startActive bool
}

// StartActive drives the line active as soon as it is bound.
func StartActive(on bool) Option {
	return func(o *options) { o.startActive = on }
}

// New binds physical line number on chip as an output. A line number
// outside the board range yields an unbound Line whose operations do
// nothing; only a chip request failure is an error.
func New(chip gpio.Chip, number int, opts ...Option) (*Line, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := &Line{number: number}
	port, bit, ok := gpio.Resolve(number)
	if !ok || chip == nil {
		return l, nil
	}
	pin, err := chip.Output(number, false)
	if err != nil {
		return nil, err
	}
	l.pin, l.port, l.bit = pin, port, bit
	if o.startActive {
		l.Activate()
	}
	return l, nil
}

// Number returns the physical line number the Line was configured with.
func (l *Line) Number() int { return l.number }

// Port returns the port and bit of the line; PortNone if unbound.
func (l *Line) Port() (gpio.Port, uint8) { return l.port, l.bit }

// Bound reports whether the line drives real hardware.
func (l *Line) Bound() bool { return l.pin != nil }

// IsActive returns the last commanded state.
func (l *Line) IsActive() bool { return l.active.Load() }

// Activate drives the line active.
func (l *Line) Activate() {
	if l.pin == nil {
		return
	}
	l.pin.Set(true)
	l.active.Store(true)
}

// Deactivate drives the line inactive.
func (l *Line) Deactivate() {
	if l.pin == nil {
		return
	}
	l.pin.Set(false)
	l.active.Store(false)
}

// Toggle inverts the line.
func (l *Line) Toggle() {
	if l.IsActive() {
		l.Deactivate()
	} else {
		l.Activate()
	}
}

// Blink toggles the line once and then blocks for d. Not for use from
// interrupt handlers.
func (l *Line) Blink(d time.Duration) {
	l.Toggle()
	sleep(d)
}

// Close drives the line inactive and releases it. The Line is unbound
// afterwards. Call it only once the dispatch context has stopped.
func (l *Line) Close() error {
	if l.pin == nil {
		return nil
	}
	pin := l.pin
	l.pin = nil
	l.port, l.bit = gpio.PortNone, 0
	l.active.Store(false)
	return pin.Close()
}
