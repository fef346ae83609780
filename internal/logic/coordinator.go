package logic

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/irq"
	"github.com/sweeney/button-blinker/internal/timer"
)

// Controller is the part of the interrupt controller the coordinator needs.
type Controller interface {
	Attach(v irq.Vector, h irq.Handler) error
	EnableGroup(p gpio.Port)
	DisableGroup(p gpio.Port)
	GroupEnabled(p gpio.Port) bool
	Stats(v irq.Vector) irq.Stats
}

// Coordinator debounces two buttons and toggles a blinking LED per button.
//
// A recognised edge closes the pin-change groups of the input ports and
// arms the settle timer; the groups reopen when the settle timer elapses,
// so further edges inside the window are dropped. An active input toggles
// its channel's action timer, and each action timer elapse toggles that
// channel's output. A channel whose timer is disarmed by a press has its
// output forced inactive.
//
// All On* methods are interrupt handlers and must run on the dispatch
// goroutine.
type Coordinator struct {
	ctrl     Controller
	settle   *timer.Timer
	channels [2]Channel
	groups   []gpio.Port
	observer Observer

	windows atomic.Uint64
	presses [2]atomic.Uint64
	toggles [2]atomic.Uint64
}

// New creates a coordinator. obs may be nil.
func New(ctrl Controller, settle *timer.Timer, ch1, ch2 Channel, obs Observer) *Coordinator {
	if obs == nil {
		obs = nopObserver{}
	}
	c := &Coordinator{
		ctrl:     ctrl,
		settle:   settle,
		channels: [2]Channel{ch1, ch2},
		observer: obs,
	}
	for _, ch := range c.channels {
		p, _ := ch.Input.Port()
		if p == gpio.PortNone || c.guards(p) {
			continue
		}
		c.groups = append(c.groups, p)
	}
	return c
}

func (c *Coordinator) guards(p gpio.Port) bool {
	for _, g := range c.groups {
		if g == p {
			return true
		}
	}
	return false
}

// Groups returns the pin-change groups closed during a settle window.
func (c *Coordinator) Groups() []gpio.Port {
	return append([]gpio.Port(nil), c.groups...)
}

// Attach installs the coordinator's handlers on the controller. Unbound
// timers and lines get no handler.
func (c *Coordinator) Attach() error {
	for _, p := range c.groups {
		v, _ := irq.PinChangeVector(p)
		if err := c.ctrl.Attach(v, c.OnPinChange); err != nil {
			return fmt.Errorf("attach %s: %w", v, err)
		}
	}
	if v, ok := c.settle.Vector(); ok {
		if err := c.ctrl.Attach(v, c.OnSettleTick); err != nil {
			return fmt.Errorf("attach settle %s: %w", v, err)
		}
	}
	for i := range c.channels {
		v, ok := c.channels[i].Timer.Vector()
		if !ok {
			continue
		}
		n := i + 1
		if err := c.ctrl.Attach(v, func() { c.OnActionTick(n) }); err != nil {
			return fmt.Errorf("attach action%d %s: %w", n, v, err)
		}
	}
	return nil
}

// Start arms the input interrupts.
func (c *Coordinator) Start() {
	for _, ch := range c.channels {
		ch.Input.EnableInterrupt()
	}
}

// Stop disarms inputs and timers and drives both outputs inactive.
func (c *Coordinator) Stop() {
	for _, ch := range c.channels {
		ch.Input.DisableInterrupt()
		ch.Timer.Reset()
		ch.Output.Deactivate()
	}
	c.settle.Reset()
}

// OnPinChange handles an edge on a guarded input port.
func (c *Coordinator) OnPinChange() {
	for _, p := range c.groups {
		c.ctrl.DisableGroup(p)
	}
	c.settle.Arm()
	c.windows.Add(1)
	c.observer.SettleChanged(true)

	for i := range c.channels {
		ch := &c.channels[i]
		if !ch.Input.IsActive() {
			continue
		}
		n := i + 1
		ch.Timer.ToggleArm()
		blinking := ch.Timer.Armed()
		if !blinking && ch.Output.IsActive() {
			ch.Output.Deactivate()
			c.observer.OutputChanged(n, false)
		}
		c.presses[i].Add(1)
		c.observer.Pressed(n, blinking)
		return
	}
}

// OnSettleTick handles the ticks posted to the settle timer. Ticks left
// over after the window closes are dropped.
func (c *Coordinator) OnSettleTick() {
	for n := c.settle.TakeTicks(); n > 0; n-- {
		c.settle.Tick()
		if !c.settle.CheckElapsed() {
			continue
		}
		for _, p := range c.groups {
			c.ctrl.EnableGroup(p)
		}
		c.settle.Disarm()
		c.observer.SettleChanged(false)
		return
	}
}

// OnActionTick handles the ticks posted to channel n's action timer (1 or 2).
func (c *Coordinator) OnActionTick(n int) {
	if n < 1 || n > len(c.channels) {
		return
	}
	ch := &c.channels[n-1]
	for k := ch.Timer.TakeTicks(); k > 0; k-- {
		ch.Timer.Tick()
		if !ch.Timer.CheckElapsed() {
			continue
		}
		ch.Output.Toggle()
		c.toggles[n-1].Add(1)
		c.observer.OutputChanged(n, ch.Output.IsActive())
	}
}

// SetDurations retargets the settle and action timers. Safe to call while
// handlers run; a timer already past its new target elapses on its next
// tick.
func (c *Coordinator) SetDurations(settle, action1, action2 time.Duration) {
	c.settle.SetDuration(settle)
	c.channels[0].Timer.SetDuration(action1)
	c.channels[1].Timer.SetDuration(action2)
}

// Snapshot returns the current state. Safe for concurrent use.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		GroupEnabled:  len(c.groups) > 0,
		Settle:        timerState(c.settle),
		SettleWindows: c.windows.Load(),
	}
	for _, p := range c.groups {
		if !c.ctrl.GroupEnabled(p) {
			s.GroupEnabled = false
		}
		if v, ok := irq.PinChangeVector(p); ok {
			s.Ignored += c.ctrl.Stats(v).Masked
		}
	}
	for i, ch := range c.channels {
		s.Channels[i] = ChannelState{
			Input:            ch.Input.Number(),
			InputActive:      ch.Input.IsActive(),
			InterruptEnabled: ch.Input.InterruptEnabled(),
			Output:           ch.Output.Number(),
			OutputActive:     ch.Output.IsActive(),
			Timer:            timerState(ch.Timer),
			Presses:          c.presses[i].Load(),
			Toggles:          c.toggles[i].Load(),
		}
	}
	return s
}

func timerState(t *timer.Timer) TimerState {
	return TimerState{
		Unit:     t.Unit().String(),
		Armed:    t.Armed(),
		Counter:  t.Counter(),
		Target:   t.Target(),
		Duration: t.Duration(),
	}
}
