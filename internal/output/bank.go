package output

import (
	"fmt"
	"time"

	"github.com/sweeney/button-blinker/internal/seq"
)

// Bank is an ordered collection of lines driven together.
type Bank struct {
	lines *seq.Sequence[*Line]
}

// NewBank creates a bank holding at most limit lines (0 = unlimited).
func NewBank(limit int) *Bank {
	return &Bank{lines: seq.New[*Line](limit)}
}

// Add appends l. It fails with seq.ErrCapacity when the bank is full.
func (b *Bank) Add(l *Line) error {
	if err := b.lines.Push(l); err != nil {
		return fmt.Errorf("add line %d: %w", l.Number(), err)
	}
	return nil
}

// Len returns the number of lines.
func (b *Bank) Len() int { return b.lines.Len() }

// Line returns the i-th line.
func (b *Bank) Line(i int) *Line { return b.lines.At(i) }

// On activates every line.
func (b *Bank) On() {
	for _, l := range b.lines.All() {
		l.Activate()
	}
}

// Off deactivates every line.
func (b *Bank) Off() {
	for _, l := range b.lines.All() {
		l.Deactivate()
	}
}

// Toggle inverts every line.
func (b *Bank) Toggle() {
	for _, l := range b.lines.All() {
		l.Toggle()
	}
}

// BlinkCollectively turns all lines on for d, then off for d.
func (b *Bank) BlinkCollectively(d time.Duration) {
	b.On()
	sleep(d)
	b.Off()
	sleep(d)
}

// BlinkSequentially lights each line alone for d, in order.
func (b *Bank) BlinkSequentially(d time.Duration) {
	b.Off()
	for _, l := range b.lines.All() {
		l.Activate()
		sleep(d)
		l.Deactivate()
	}
}

// Close closes every line and empties the bank.
func (b *Bank) Close() error {
	var errs []error
	for _, l := range b.lines.All() {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.lines.Clear()
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
