// Package timer implements periodic tick-counting timers bound to the
// board's three timer units.
package timer

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/button-blinker/internal/irq"
)

// DefaultTickPeriod is the time between two tick interrupts of a unit.
const DefaultTickPeriod = 128 * time.Microsecond

// Unit selects a hardware timer unit.
type Unit int

const (
	Unit0 Unit = iota
	Unit1
	Unit2
	UnitNone // unbound
)

// UnitFromIndex maps a configured index to a Unit; anything outside 0-2 is UnitNone.
func UnitFromIndex(i int) Unit {
	if i < int(Unit0) || i > int(Unit2) {
		return UnitNone
	}
	return Unit(i)
}

// Vector returns the tick vector of u.
func (u Unit) Vector() (irq.Vector, bool) {
	switch u {
	case Unit0:
		return irq.Timer0, true
	case Unit1:
		return irq.Timer1, true
	case Unit2:
		return irq.Timer2, true
	default:
		return irq.NumVectors, false
	}
}

func (u Unit) String() string {
	if v, ok := u.Vector(); ok {
		return v.String()
	}
	return "none"
}

// Mask enables and disables tick vectors.
type Mask interface {
	Enable(irq.Vector)
	Disable(irq.Vector)
}

// Ticks converts d into a tick count, rounding half up.
func Ticks(d, period time.Duration) uint32 {
	if d <= 0 || period <= 0 {
		return 0
	}
	return uint32((2*d + period) / (2 * period))
}

// Timer counts ticks of one unit towards a target.
//
// Tick and CheckElapsed belong to the unit's own interrupt handler and must
// not be called from anywhere else. The remaining methods are for setup,
// arm/disarm from handlers, and introspection.
type Timer struct {
	unit   Unit
	vector irq.Vector
	bound  bool
	period time.Duration
	mask   Mask

	counter atomic.Uint32
	target  atomic.Uint32
	armed   atomic.Bool
	pending atomic.Uint32 // ticks posted by the circuit, not yet counted
	armCh   chan struct{}
}

// Option configures a Timer.
type Option func(*Timer)

// WithTickPeriod overrides DefaultTickPeriod.
func WithTickPeriod(p time.Duration) Option {
	return func(t *Timer) {
		if p > 0 {
			t.period = p
		}
	}
}

// New creates a disarmed timer on unit that elapses every d.
// An unbound unit yields a timer whose operations do nothing.
func New(unit Unit, d time.Duration, mask Mask, opts ...Option) *Timer {
	t := &Timer{unit: unit, period: DefaultTickPeriod, mask: mask, armCh: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(t)
	}
	t.vector, t.bound = unit.Vector()
	if !t.bound || mask == nil {
		t.unit = UnitNone
		t.bound = false
		return t
	}
	t.SetDuration(d)
	return t
}

// Unit returns the unit the timer is bound to.
func (t *Timer) Unit() Unit { return t.unit }

// Vector returns the tick vector, or false if unbound.
func (t *Timer) Vector() (irq.Vector, bool) { return t.vector, t.bound }

// TickPeriod returns the time represented by one tick.
func (t *Timer) TickPeriod() time.Duration { return t.period }

// Counter returns the current tick count.
func (t *Timer) Counter() uint32 { return t.counter.Load() }

// Target returns the tick count at which the timer elapses.
func (t *Timer) Target() uint32 { return t.target.Load() }

// Armed reports whether the unit's tick interrupt is enabled.
func (t *Timer) Armed() bool { return t.armed.Load() }

// Arm enables the tick interrupt and drops stale posted ticks. The counter
// is not reset.
func (t *Timer) Arm() {
	if !t.bound {
		return
	}
	t.pending.Store(0)
	t.mask.Enable(t.vector)
	t.armed.Store(true)
	select {
	case t.armCh <- struct{}{}:
	default:
	}
}

// Disarm disables the tick interrupt.
func (t *Timer) Disarm() {
	if !t.bound {
		return
	}
	t.mask.Disable(t.vector)
	t.armed.Store(false)
}

// ToggleArm disarms an armed timer and arms a disarmed one.
func (t *Timer) ToggleArm() {
	if t.Armed() {
		t.Disarm()
	} else {
		t.Arm()
	}
}

// Post records n ticks that elapsed since the last raise of the vector.
// The unit's Circuit posts before it raises, so ticks folded into one
// pending raise are not lost.
func (t *Timer) Post(n uint32) {
	if t.bound && n > 0 {
		t.pending.Add(n)
	}
}

// TakeTicks returns the posted ticks and clears them. Handler only.
func (t *Timer) TakeTicks() uint32 {
	return t.pending.Swap(0)
}

// armSignal wakes a Circuit waiting for Arm. Spurious wakeups are possible.
func (t *Timer) armSignal() <-chan struct{} { return t.armCh }

// Tick advances the counter by one.
func (t *Timer) Tick() {
	if t.bound {
		t.counter.Add(1)
	}
}

// CheckElapsed reports whether the counter has reached the target and, if
// so, resets it to zero.
func (t *Timer) CheckElapsed() bool {
	if !t.bound {
		return false
	}
	if t.counter.Load() >= t.target.Load() {
		t.counter.Store(0)
		return true
	}
	return false
}

// SetDuration recomputes the target from d.
func (t *Timer) SetDuration(d time.Duration) {
	if t.bound {
		t.target.Store(Ticks(d, t.period))
	}
}

// SetTarget sets the target tick count directly.
func (t *Timer) SetTarget(n uint32) {
	if t.bound {
		t.target.Store(n)
	}
}

// Duration returns the elapse period implied by the target.
func (t *Timer) Duration() time.Duration {
	return time.Duration(t.target.Load()) * t.period
}

// Reset disarms the timer and zeroes the counter.
func (t *Timer) Reset() {
	t.Disarm()
	t.counter.Store(0)
}
