// Package input reads digital input lines such as buttons and arms their
// pin-change interrupts.
package input

import (
	"sync/atomic"

	"github.com/sweeney/button-blinker/internal/gpio"
)

// Controller is the part of the interrupt controller an input line needs.
type Controller interface {
	PinChange(p gpio.Port, bit uint8)
	SetPinMask(p gpio.Port, bit uint8, on bool)
	EnableGroup(p gpio.Port)
}

// Line is one input line. Edges of either polarity are reported to the
// controller; whether they raise an interrupt depends on the line's mask bit.
type Line struct {
	pin    gpio.InputPin
	ctrl   Controller
	number int
	port   gpio.Port
	bit    uint8
	armed  atomic.Bool
}

// New binds physical line number on chip as an input. A line number outside
// the board range yields an unbound Line whose operations do nothing.
func New(chip gpio.Chip, number int, ctrl Controller) (*Line, error) {
	l := &Line{number: number}
	port, bit, ok := gpio.Resolve(number)
	if !ok || chip == nil || ctrl == nil {
		return l, nil
	}
	pin, err := chip.Input(number, func() { ctrl.PinChange(port, bit) })
	if err != nil {
		return nil, err
	}
	l.pin, l.ctrl, l.port, l.bit = pin, ctrl, port, bit
	return l, nil
}

// Number returns the physical line number the Line was configured with.
func (l *Line) Number() int { return l.number }

// Port returns the port and bit of the line; PortNone if unbound.
func (l *Line) Port() (gpio.Port, uint8) { return l.port, l.bit }

// Bound reports whether the line reads real hardware.
func (l *Line) Bound() bool { return l.pin != nil }

// IsActive reads the live line level.
func (l *Line) IsActive() bool {
	if l.pin == nil {
		return false
	}
	return l.pin.Get()
}

// InterruptEnabled reports whether the line's mask bit is set.
func (l *Line) InterruptEnabled() bool { return l.armed.Load() }

// EnableInterrupt sets the line's mask bit and enables its port's group.
func (l *Line) EnableInterrupt() {
	if l.pin == nil {
		return
	}
	l.ctrl.EnableGroup(l.port)
	l.ctrl.SetPinMask(l.port, l.bit, true)
	l.armed.Store(true)
}

// DisableInterrupt clears the line's mask bit. Other lines on the port and
// the group enable are not affected.
func (l *Line) DisableInterrupt() {
	if l.pin == nil {
		return
	}
	l.ctrl.SetPinMask(l.port, l.bit, false)
	l.armed.Store(false)
}

// ToggleInterrupt flips the line's mask bit.
func (l *Line) ToggleInterrupt() {
	if l.InterruptEnabled() {
		l.DisableInterrupt()
	} else {
		l.EnableInterrupt()
	}
}

// Close disarms the line and releases it. Call it only once the dispatch
// context has stopped.
func (l *Line) Close() error {
	if l.pin == nil {
		return nil
	}
	l.DisableInterrupt()
	pin := l.pin
	l.pin = nil
	l.port, l.bit = gpio.PortNone, 0
	return pin.Close()
}
