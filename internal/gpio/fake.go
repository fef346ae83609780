package gpio

import (
	"errors"
	"sync"
)

// FakeChip is a test double that keeps line levels in memory.
type FakeChip struct {
	mu      sync.Mutex
	levels  map[int]bool
	edges   map[int]func()
	claimed map[int]bool

	// Writes counts Set calls per line.
	Writes map[int]int

	// OnSet, if set, is called after every output write.
	OnSet func(line int, active bool)

	// RequestError, if set, will be returned by Output and Input.
	RequestError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		levels:  make(map[int]bool),
		edges:   make(map[int]func()),
		claimed: make(map[int]bool),
		Writes:  make(map[int]int),
	}
}

// Output claims line as an output.
func (f *FakeChip) Output(line int, initial bool) (OutputPin, error) {
	if err := f.claim(line); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.levels[line] = initial
	f.mu.Unlock()
	return &fakeOutput{chip: f, line: line}, nil
}

// Input claims line as an input.
func (f *FakeChip) Input(line int, onEdge func()) (InputPin, error) {
	if err := f.claim(line); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.edges[line] = onEdge
	f.mu.Unlock()
	return &fakeInput{chip: f, line: line}, nil
}

func (f *FakeChip) claim(line int) error {
	if f.RequestError != nil {
		return f.RequestError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[line] {
		return errors.New("line busy")
	}
	f.claimed[line] = true
	return nil
}

// Level returns the current level of line.
func (f *FakeChip) Level(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[line]
}

// Claimed reports whether line is currently requested.
func (f *FakeChip) Claimed(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed[line]
}

// Drive sets an input level and reports an edge if the level changed.
func (f *FakeChip) Drive(line int, level bool) {
	f.mu.Lock()
	changed := f.levels[line] != level
	f.levels[line] = level
	h := f.edges[line]
	f.mu.Unlock()
	if changed && h != nil {
		h()
	}
}

// Bounce reports an edge on line without changing its level, as contact
// bounce seen after the level has settled would.
func (f *FakeChip) Bounce(line int) {
	f.mu.Lock()
	h := f.edges[line]
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.Closed = true
	return nil
}

type fakeOutput struct {
	chip *FakeChip
	line int
}

func (o *fakeOutput) Set(active bool) {
	o.chip.mu.Lock()
	o.chip.levels[o.line] = active
	o.chip.Writes[o.line]++
	hook := o.chip.OnSet
	o.chip.mu.Unlock()
	if hook != nil {
		hook(o.line, active)
	}
}

func (o *fakeOutput) Close() error {
	o.chip.mu.Lock()
	defer o.chip.mu.Unlock()
	o.chip.levels[o.line] = false
	delete(o.chip.claimed, o.line)
	return nil
}

type fakeInput struct {
	chip *FakeChip
	line int
}

func (i *fakeInput) Get() bool {
	return i.chip.Level(i.line)
}

func (i *fakeInput) Close() error {
	i.chip.mu.Lock()
	defer i.chip.mu.Unlock()
	delete(i.chip.edges, i.line)
	delete(i.chip.claimed, i.line)
	return nil
}
