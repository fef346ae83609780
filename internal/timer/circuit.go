package timer

import (
	"context"
	"time"

	"github.com/sweeney/button-blinker/internal/irq"
)

// MinWakeup is the shortest interval at which a Circuit wakes. Go tickers
// cannot reliably fire faster, so a shorter tick period is delivered as
// several ticks per wakeup.
const MinWakeup = time.Millisecond

// Raiser is the interrupt controller's raise entry point.
type Raiser interface {
	Raise(irq.Vector)
}

// Circuit is the tick source of one timer. While the timer is armed it
// posts the ticks that elapsed in wall-clock time and raises the unit's
// vector; while disarmed it sleeps until the next Arm.
type Circuit struct {
	timer  *Timer
	raiser Raiser
	wakeup time.Duration
	now    func() time.Time
}

// NewCircuit creates the tick source for t.
func NewCircuit(t *Timer, raiser Raiser) *Circuit {
	wakeup := t.TickPeriod()
	if wakeup < MinWakeup {
		wakeup = MinWakeup
	}
	return &Circuit{timer: t, raiser: raiser, wakeup: wakeup, now: time.Now}
}

// Run ticks until ctx is cancelled. An unbound timer returns immediately.
func (c *Circuit) Run(ctx context.Context) {
	v, ok := c.timer.Vector()
	if !ok || c.raiser == nil {
		return
	}
	for {
		if !c.timer.Armed() {
			select {
			case <-ctx.Done():
				return
			case <-c.timer.armSignal():
			}
			continue
		}
		if !c.runArmed(ctx, v) {
			return
		}
	}
}

// runArmed delivers ticks until the timer is disarmed. It returns false
// once ctx is done.
func (c *Circuit) runArmed(ctx context.Context, v irq.Vector) bool {
	period := c.timer.TickPeriod()
	ticker := time.NewTicker(c.wakeup)
	defer ticker.Stop()

	last := c.now()
	var carry time.Duration
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if !c.timer.Armed() {
			return true
		}
		now := c.now()
		carry += now.Sub(last)
		last = now
		n := carry / period
		if n <= 0 {
			continue
		}
		carry -= n * period
		c.timer.Post(uint32(n))
		c.raiser.Raise(v)
	}
}
