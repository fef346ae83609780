// Package board assembles the lines, timers and coordinator described by a
// config into one owner and runs their tick sources.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/button-blinker/internal/config"
	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/input"
	"github.com/sweeney/button-blinker/internal/irq"
	"github.com/sweeney/button-blinker/internal/logic"
	"github.com/sweeney/button-blinker/internal/output"
	"github.com/sweeney/button-blinker/internal/timer"
)

// Board owns every hardware role. The controller's dispatch loop is run by
// the caller.
type Board struct {
	ctrl     *irq.Controller
	settle   *timer.Timer
	actions  [2]*timer.Timer
	inputs   [2]*input.Line
	outputs  *output.Bank
	coord    *logic.Coordinator
	circuits []*timer.Circuit

	closeOnce sync.Once
	closeErr  error
}

// New claims the configured lines on chip and attaches the coordinator's
// handlers to ctrl. Out-of-range lines and timer units are left unbound.
func New(cfg config.Config, chip gpio.Chip, ctrl *irq.Controller, obs logic.Observer) (*Board, error) {
	b := &Board{ctrl: ctrl, outputs: output.NewBank(2)}
	period := timer.WithTickPeriod(cfg.TickPeriod())

	b.settle = timer.New(timer.UnitFromIndex(cfg.Timers.SettleUnit), cfg.SettleDuration(), ctrl, period)
	b.actions[0] = timer.New(timer.UnitFromIndex(cfg.Timers.Action1Unit), cfg.ActionDuration(1), ctrl, period)
	b.actions[1] = timer.New(timer.UnitFromIndex(cfg.Timers.Action2Unit), cfg.ActionDuration(2), ctrl, period)

	start := output.StartActive(cfg.Lines.OutputStartActive)
	for _, n := range []int{cfg.Lines.Output1, cfg.Lines.Output2} {
		l, err := output.New(chip, n, start)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("output line %d: %w", n, err)
		}
		if err := b.outputs.Add(l); err != nil {
			b.Close()
			return nil, err
		}
	}
	for i, n := range []int{cfg.Lines.Input1, cfg.Lines.Input2} {
		l, err := input.New(chip, n, ctrl)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("input line %d: %w", n, err)
		}
		b.inputs[i] = l
	}

	b.coord = logic.New(ctrl, b.settle,
		logic.Channel{Input: b.inputs[0], Output: b.outputs.Line(0), Timer: b.actions[0]},
		logic.Channel{Input: b.inputs[1], Output: b.outputs.Line(1), Timer: b.actions[1]},
		obs,
	)
	if err := b.coord.Attach(); err != nil {
		b.Close()
		return nil, err
	}

	for _, t := range []*timer.Timer{b.settle, b.actions[0], b.actions[1]} {
		if _, ok := t.Vector(); ok {
			b.circuits = append(b.circuits, timer.NewCircuit(t, ctrl))
		}
	}
	return b, nil
}

// Coordinator returns the board's coordinator.
func (b *Board) Coordinator() *logic.Coordinator { return b.coord }

// Outputs returns the output bank.
func (b *Board) Outputs() *output.Bank { return b.outputs }

// Timers returns the settle timer followed by the two action timers.
func (b *Board) Timers() []*timer.Timer {
	return []*timer.Timer{b.settle, b.actions[0], b.actions[1]}
}

// SelfTest lights each output in turn for d and leaves them in their start
// state. It blocks and must run before Start.
func (b *Board) SelfTest(d time.Duration, startActive bool) {
	if d <= 0 {
		return
	}
	b.outputs.BlinkSequentially(d)
	b.outputs.BlinkCollectively(d)
	if startActive {
		b.outputs.On()
	}
}

// Start arms the input interrupts.
func (b *Board) Start() {
	b.coord.Start()
}

// RunCircuits runs the tick source of every bound timer until ctx is
// cancelled.
func (b *Board) RunCircuits(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range b.circuits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
	}
	wg.Wait()
}

// Apply retargets the timers from a reloaded config. Line and unit
// assignments need a restart.
func (b *Board) Apply(cfg config.Config) {
	b.coord.SetDurations(cfg.SettleDuration(), cfg.ActionDuration(1), cfg.ActionDuration(2))
}

// Snapshot returns the coordinator state.
func (b *Board) Snapshot() logic.Snapshot {
	return b.coord.Snapshot()
}

// Close stops the coordinator and releases every line. Call it after the
// dispatch loop and circuits have stopped.
func (b *Board) Close() error {
	b.closeOnce.Do(func() {
		if b.coord != nil {
			b.coord.Stop()
		}
		b.ctrl.DisableAllGroups()
		var errs []error
		for _, l := range b.inputs {
			if l == nil {
				continue
			}
			if err := l.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := b.outputs.Close(); err != nil {
			errs = append(errs, err)
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}
