// Package logic holds the button/LED coordination that runs inside the
// interrupt handlers. It talks to hardware only through the input, output,
// timer and irq packages and never blocks.
package logic

import (
	"time"

	"github.com/sweeney/button-blinker/internal/input"
	"github.com/sweeney/button-blinker/internal/output"
	"github.com/sweeney/button-blinker/internal/timer"
)

// Channel pairs an input line with the action timer and output line it
// controls.
type Channel struct {
	Input  *input.Line
	Output *output.Line
	Timer  *timer.Timer
}

// Observer is notified from interrupt handlers. Implementations must not
// block.
type Observer interface {
	Pressed(channel int, blinking bool)
	OutputChanged(channel int, active bool)
	SettleChanged(open bool)
}

type nopObserver struct{}

func (nopObserver) Pressed(int, bool)       {}
func (nopObserver) OutputChanged(int, bool) {}
func (nopObserver) SettleChanged(bool)      {}

// TimerState is a point-in-time view of one timer.
type TimerState struct {
	Unit     string        `json:"unit"`
	Armed    bool          `json:"armed"`
	Counter  uint32        `json:"counter"`
	Target   uint32        `json:"target"`
	Duration time.Duration `json:"duration_ns"`
}

// ChannelState is a point-in-time view of one channel.
type ChannelState struct {
	Input            int        `json:"input_line"`
	InputActive      bool       `json:"input_active"`
	InterruptEnabled bool       `json:"interrupt_enabled"`
	Output           int        `json:"output_line"`
	OutputActive     bool       `json:"output_active"`
	Timer            TimerState `json:"timer"`
	Presses          uint64     `json:"presses"`
	Toggles          uint64     `json:"toggles"`
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	GroupEnabled  bool            `json:"group_enabled"`
	Settle        TimerState      `json:"settle"`
	SettleWindows uint64          `json:"settle_windows"`
	Ignored       uint64          `json:"ignored"` // edges dropped while a group was closed
	Channels      [2]ChannelState `json:"channels"`
}
