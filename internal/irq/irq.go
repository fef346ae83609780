// Package irq models the board's interrupt controller: a fixed vector
// table, per-vector enable bits, per-port pin-change masks and a single
// dispatch context that runs handlers one at a time.
//
// Hardware sources (line edge callbacks, timer circuits) call Raise or
// PinChange. Those never block: each vector has one pending flag, so several
// raises before dispatch collapse into one handler run, exactly like a
// hardware interrupt flag.
package irq

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sweeney/button-blinker/internal/gpio"
)

// Vector identifies an interrupt source. Lower values have higher priority.
type Vector uint8

const (
	PinChangeB Vector = iota // PCINT0, lines 8-13
	PinChangeC               // PCINT1, lines 14-19
	PinChangeD               // PCINT2, lines 0-7
	Timer2
	Timer1
	Timer0
	NumVectors
)

var vectorNames = [NumVectors]string{"pcint0", "pcint1", "pcint2", "timer2", "timer1", "timer0"}

func (v Vector) String() string {
	if v < NumVectors {
		return vectorNames[v]
	}
	return "invalid"
}

// ErrVectorInUse is returned by Attach when a vector already has an owner.
var ErrVectorInUse = errors.New("irq: vector already has a handler")

// ErrInvalidVector is returned by Attach for vectors outside the table.
var ErrInvalidVector = errors.New("irq: invalid vector")

// Handler runs in the dispatch context. It takes no arguments, returns
// nothing and must not block.
type Handler func()

// PinChangeVector returns the pin-change vector serving port p.
func PinChangeVector(p gpio.Port) (Vector, bool) {
	switch p {
	case gpio.PortB:
		return PinChangeB, true
	case gpio.PortC:
		return PinChangeC, true
	case gpio.PortD:
		return PinChangeD, true
	default:
		return NumVectors, false
	}
}

// Stats counts what happened to raises on one vector.
type Stats struct {
	Dispatched uint64 // handler runs
	Masked     uint64 // raises discarded because the vector or pin was disabled
	Coalesced  uint64 // raises folded into an already pending flag
}

// Controller is the interrupt controller. Handlers must be attached before
// Run starts; after that the table is read-only.
type Controller struct {
	handlers [NumVectors]Handler
	enabled  [NumVectors]atomic.Bool
	pending  [NumVectors]atomic.Bool
	masks    [NumVectors]atomic.Uint32

	dispatched [NumVectors]atomic.Uint64
	masked     [NumVectors]atomic.Uint64
	coalesced  [NumVectors]atomic.Uint64

	wake chan struct{}
}

// NewController creates a controller with every vector disabled.
func NewController() *Controller {
	return &Controller{wake: make(chan struct{}, 1)}
}

// Attach binds h to v. Each vector has exactly one owner.
func (c *Controller) Attach(v Vector, h Handler) error {
	if v >= NumVectors || h == nil {
		return ErrInvalidVector
	}
	if c.handlers[v] != nil {
		return ErrVectorInUse
	}
	c.handlers[v] = h
	return nil
}

// Enable sets the enable bit of v.
func (c *Controller) Enable(v Vector) {
	if v < NumVectors {
		c.enabled[v].Store(true)
	}
}

// Disable clears the enable bit of v. A raise already pending on v is
// discarded at dispatch.
func (c *Controller) Disable(v Vector) {
	if v < NumVectors {
		c.enabled[v].Store(false)
	}
}

// Enabled reports the enable bit of v.
func (c *Controller) Enabled(v Vector) bool {
	return v < NumVectors && c.enabled[v].Load()
}

// EnableGroup enables pin-change interrupts for port p.
func (c *Controller) EnableGroup(p gpio.Port) {
	if v, ok := PinChangeVector(p); ok {
		c.Enable(v)
	}
}

// DisableGroup disables pin-change interrupts for port p. Pin masks are
// left untouched.
func (c *Controller) DisableGroup(p gpio.Port) {
	if v, ok := PinChangeVector(p); ok {
		c.Disable(v)
	}
}

// GroupEnabled reports whether pin-change interrupts for port p are enabled.
func (c *Controller) GroupEnabled(p gpio.Port) bool {
	v, ok := PinChangeVector(p)
	return ok && c.Enabled(v)
}

// EnableAllGroups enables pin-change interrupts on every port.
func (c *Controller) EnableAllGroups() {
	for _, v := range []Vector{PinChangeB, PinChangeC, PinChangeD} {
		c.Enable(v)
	}
}

// DisableAllGroups disables pin-change interrupts on every port.
func (c *Controller) DisableAllGroups() {
	for _, v := range []Vector{PinChangeB, PinChangeC, PinChangeD} {
		c.Disable(v)
	}
}

// SetPinMask sets or clears one pin's bit in its port's pin-change mask
// without touching the other bits.
func (c *Controller) SetPinMask(p gpio.Port, bit uint8, on bool) {
	v, ok := PinChangeVector(p)
	if !ok || bit >= gpio.PortWidth {
		return
	}
	m := &c.masks[v]
	for {
		old := m.Load()
		next := old &^ (1 << bit)
		if on {
			next = old | (1 << bit)
		}
		if old == next || m.CompareAndSwap(old, next) {
			return
		}
	}
}

// PinMasked reports whether the pin's mask bit is set.
func (c *Controller) PinMasked(p gpio.Port, bit uint8) bool {
	v, ok := PinChangeVector(p)
	if !ok || bit >= gpio.PortWidth {
		return false
	}
	return c.masks[v].Load()&(1<<bit) != 0
}

// PinChange is the hardware entry point for an edge on a port pin. The
// group vector is raised only if the pin's mask bit and the group enable are
// both set.
func (c *Controller) PinChange(p gpio.Port, bit uint8) {
	v, ok := PinChangeVector(p)
	if !ok {
		return
	}
	if !c.PinMasked(p, bit) {
		c.masked[v].Add(1)
		return
	}
	c.Raise(v)
}

// Raise sets the pending flag of v if v is enabled. It never blocks.
func (c *Controller) Raise(v Vector) {
	if v >= NumVectors {
		return
	}
	if !c.enabled[v].Load() {
		c.masked[v].Add(1)
		return
	}
	if c.pending[v].Swap(true) {
		c.coalesced[v].Add(1)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether v has an undispatched raise.
func (c *Controller) Pending(v Vector) bool {
	return v < NumVectors && c.pending[v].Load()
}

// DispatchPending runs the handlers of all pending vectors, highest
// priority first, rescanning from the top after every handler. It returns
// the number of handlers run. It must only be called from the dispatch
// context (Run, or a test that owns the controller).
func (c *Controller) DispatchPending() int {
	n := 0
	for {
		ran := false
		for v := Vector(0); v < NumVectors; v++ {
			if !c.pending[v].Swap(false) {
				continue
			}
			h := c.handlers[v]
			if h == nil || !c.enabled[v].Load() {
				c.masked[v].Add(1)
				continue
			}
			h()
			c.dispatched[v].Add(1)
			n++
			ran = true
			break
		}
		if !ran {
			return n
		}
	}
}

// Run is the dispatch context. It returns when ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
			c.DispatchPending()
		}
	}
}

// Stats returns the counters of v.
func (c *Controller) Stats(v Vector) Stats {
	if v >= NumVectors {
		return Stats{}
	}
	return Stats{
		Dispatched: c.dispatched[v].Load(),
		Masked:     c.masked[v].Load(),
		Coalesced:  c.coalesced[v].Load(),
	}
}
