package output

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/button-blinker/internal/gpio"
	"github.com/sweeney/button-blinker/internal/seq"
)

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestLineActivateDeactivateToggle(t *testing.T) {
	chip := gpio.NewFakeChip()
	l, err := New(chip, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	port, bit := l.Port()
	if port != gpio.PortB || bit != 0 {
		t.Errorf("expected B0, got %s%d", port, bit)
	}
	if l.IsActive() || chip.Level(8) {
		t.Error("new line should be inactive")
	}

	l.Activate()
	if !l.IsActive() || !chip.Level(8) {
		t.Error("activate: cache and pin should both be active")
	}

	l.Toggle()
	if l.IsActive() || chip.Level(8) {
		t.Error("toggle: cache and pin should both be inactive")
	}

	l.Toggle()
	l.Deactivate()
	if l.IsActive() || chip.Level(8) {
		t.Error("deactivate: cache and pin should both be inactive")
	}
}

func TestLineStartActive(t *testing.T) {
	chip := gpio.NewFakeChip()
	l, err := New(chip, 9, StartActive(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.IsActive() || !chip.Level(9) {
		t.Error("expected line to start active")
	}
}

func TestLineUnbound(t *testing.T) {
	chip := gpio.NewFakeChip()
	l, err := New(chip, 42)
	if err != nil {
		t.Fatalf("out-of-range line must not be an error: %v", err)
	}
	if l.Bound() {
		t.Error("expected unbound line")
	}

	l.Activate()
	l.Toggle()
	if l.IsActive() {
		t.Error("unbound line should stay inactive")
	}
	if err := l.Close(); err != nil {
		t.Errorf("close of unbound line: %v", err)
	}
}

func TestLineRequestError(t *testing.T) {
	chip := gpio.NewFakeChip()
	chip.RequestError = errors.New("simulated error")

	if _, err := New(chip, 8); err == nil {
		t.Error("expected error to be returned")
	}
}

func TestLineBlink(t *testing.T) {
	slept := stubSleep(t)
	chip := gpio.NewFakeChip()
	l, _ := New(chip, 8)

	l.Blink(250 * time.Millisecond)

	if !l.IsActive() {
		t.Error("blink should toggle once")
	}
	if len(*slept) != 1 || (*slept)[0] != 250*time.Millisecond {
		t.Errorf("expected one 250ms delay, got %v", *slept)
	}
}

func TestLineClose(t *testing.T) {
	chip := gpio.NewFakeChip()
	l, _ := New(chip, 8)
	l.Activate()

	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chip.Level(8) || chip.Claimed(8) {
		t.Error("close should drive the line inactive and release it")
	}
	if l.IsActive() || l.Bound() {
		t.Error("closed line should be inactive and unbound")
	}

	writes := chip.Writes[8]
	l.Activate()
	if chip.Writes[8] != writes {
		t.Error("closed line must not write")
	}
}

func newBank(t *testing.T, chip *gpio.FakeChip, lines ...int) *Bank {
	t.Helper()
	b := NewBank(0)
	for _, n := range lines {
		l, err := New(chip, n)
		if err != nil {
			t.Fatalf("new line %d: %v", n, err)
		}
		if err := b.Add(l); err != nil {
			t.Fatalf("add line %d: %v", n, err)
		}
	}
	return b
}

func TestBankCollectiveOps(t *testing.T) {
	chip := gpio.NewFakeChip()
	b := newBank(t, chip, 8, 9, 10)

	b.On()
	for _, n := range []int{8, 9, 10} {
		if !chip.Level(n) {
			t.Errorf("line %d should be on", n)
		}
	}

	b.Line(1).Deactivate()
	b.Toggle()
	if chip.Level(8) || !chip.Level(9) || chip.Level(10) {
		t.Error("toggle should invert each line independently")
	}

	b.Off()
	for _, n := range []int{8, 9, 10} {
		if chip.Level(n) {
			t.Errorf("line %d should be off", n)
		}
	}
}

func TestBankLimit(t *testing.T) {
	chip := gpio.NewFakeChip()
	b := NewBank(1)
	l1, _ := New(chip, 8)
	l2, _ := New(chip, 9)

	if err := b.Add(l1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Add(l2); !errors.Is(err, seq.ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 line, got %d", b.Len())
	}
}

func TestBankBlinkSequentially(t *testing.T) {
	chip := gpio.NewFakeChip()
	b := newBank(t, chip, 8, 9)

	var lit []int
	chip.OnSet = func(line int, active bool) {
		if active {
			lit = append(lit, line)
		}
	}
	slept := stubSleep(t)

	b.BlinkSequentially(50 * time.Millisecond)

	if len(lit) != 2 || lit[0] != 8 || lit[1] != 9 {
		t.Errorf("expected lines lit in order [8 9], got %v", lit)
	}
	if len(*slept) != 2 {
		t.Errorf("expected 2 delays, got %d", len(*slept))
	}
	if chip.Level(8) || chip.Level(9) {
		t.Error("all lines should end off")
	}
}

func TestBankBlinkCollectively(t *testing.T) {
	chip := gpio.NewFakeChip()
	b := newBank(t, chip, 8, 9)
	slept := stubSleep(t)

	b.BlinkCollectively(10 * time.Millisecond)

	if len(*slept) != 2 {
		t.Errorf("expected 2 delays, got %d", len(*slept))
	}
	if chip.Level(8) || chip.Level(9) {
		t.Error("all lines should end off")
	}
}

func TestBankClose(t *testing.T) {
	chip := gpio.NewFakeChip()
	b := newBank(t, chip, 8, 9)
	b.On()

	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty bank, got %d", b.Len())
	}
	if chip.Claimed(8) || chip.Claimed(9) {
		t.Error("lines should be released")
	}
}
