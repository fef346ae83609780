// Package adc samples the board's analog inputs as 10-bit values and
// derives duty cycles and PWM on/off times from them.
package adc

import (
	"errors"
	"fmt"
	"time"
)

// Max is the highest value a conversion returns.
const Max = 1023

// DefaultPWMPeriod is the PWM period used when none is given.
const DefaultPWMPeriod = 10 * time.Millisecond

// ErrUnbound is returned when the ADC was configured with a line that has
// no analog channel.
var ErrUnbound = errors.New("adc: line has no analog channel")

// Sampler performs one conversion on an analog channel (0-5).
type Sampler interface {
	Sample(channel int) (uint16, error)
}

// ADC reads one analog channel.
type ADC struct {
	sampler Sampler
	channel int
	bound   bool
}

// ChannelFor maps a line number onto an analog channel. Both the channel
// numbers 0-5 and the board line numbers 14-19 are accepted.
func ChannelFor(line int) (int, bool) {
	switch {
	case line >= 0 && line <= 5:
		return line, true
	case line >= 14 && line <= 19:
		return line - 14, true
	default:
		return 0, false
	}
}

// New creates an ADC on line. Lines without an analog channel yield an
// unbound ADC whose reads fail with ErrUnbound.
func New(line int, sampler Sampler) *ADC {
	ch, ok := ChannelFor(line)
	return &ADC{sampler: sampler, channel: ch, bound: ok && sampler != nil}
}

// Channel returns the analog channel, or false if unbound.
func (a *ADC) Channel() (int, bool) { return a.channel, a.bound }

// Read performs one conversion, clamped to 0..Max.
func (a *ADC) Read() (uint16, error) {
	if !a.bound {
		return 0, ErrUnbound
	}
	v, err := a.sampler.Sample(a.channel)
	if err != nil {
		return 0, fmt.Errorf("sample channel %d: %w", a.channel, err)
	}
	if v > Max {
		v = Max
	}
	return v, nil
}

// DutyCycle returns a fresh reading as a fraction of Max.
func (a *ADC) DutyCycle() (float64, error) {
	v, err := a.Read()
	if err != nil {
		return 0, err
	}
	return float64(v) / Max, nil
}

// PWMValues splits period into on and off times following a fresh reading.
// The on time is rounded half up to whole microseconds.
func (a *ADC) PWMValues(period time.Duration) (on, off time.Duration, err error) {
	duty, err := a.DutyCycle()
	if err != nil {
		return 0, 0, err
	}
	on, off = SplitPeriod(duty, period)
	return on, off, nil
}

// SplitPeriod divides period by duty (0..1) into on and off times, rounded to microseconds.
func SplitPeriod(duty float64, period time.Duration) (on, off time.Duration) {
	if period <= 0 {
		period = DefaultPWMPeriod
	}
	switch {
	case duty < 0:
		duty = 0
	case duty > 1:
		duty = 1
	}
	periodUs := period.Microseconds()
	onUs := int64(duty*float64(periodUs) + 0.5)
	return time.Duration(onUs) * time.Microsecond, time.Duration(periodUs-onUs) * time.Microsecond
}
