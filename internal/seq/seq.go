// Package seq provides a growable sequence with an optional capacity limit.
// Growing past the limit fails with ErrCapacity and leaves the contents as
// they were.
package seq

import (
	"errors"
	"iter"

	"golang.org/x/exp/slices"
)

// ErrCapacity is returned when an operation would grow a sequence past its limit.
var ErrCapacity = errors.New("seq: capacity exhausted")

// Sequence is an ordered, growable collection of T. Not safe for concurrent use.
type Sequence[T any] struct {
	items []T
	limit int
}

// New creates an empty sequence holding at most limit elements.
// A limit of zero or less means unlimited.
func New[T any](limit int) *Sequence[T] {
	return &Sequence[T]{limit: limit}
}

// Len returns the number of elements.
func (s *Sequence[T]) Len() int { return len(s.items) }

// Limit returns the capacity limit, or 0 when unlimited.
func (s *Sequence[T]) Limit() int {
	if s.limit <= 0 {
		return 0
	}
	return s.limit
}

// At returns the element at i. It panics if i is out of range, like a slice index.
func (s *Sequence[T]) At(i int) T { return s.items[i] }

// Set replaces the element at i.
func (s *Sequence[T]) Set(i int, v T) { s.items[i] = v }

// Last returns the final element, or false if the sequence is empty.
func (s *Sequence[T]) Last() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// All iterates over index and element in order.
func (s *Sequence[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, v := range s.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

func (s *Sequence[T]) fits(n int) bool {
	return s.limit <= 0 || n <= s.limit
}

// Push appends v.
func (s *Sequence[T]) Push(v T) error {
	if !s.fits(len(s.items) + 1) {
		return ErrCapacity
	}
	s.items = append(s.items, v)
	return nil
}

// Pop removes the last element. A sequence of one element or fewer is
// cleared entirely.
func (s *Sequence[T]) Pop() {
	if len(s.items) <= 1 {
		s.Clear()
		return
	}
	var zero T
	s.items[len(s.items)-1] = zero
	s.items = slices.Clip(s.items[:len(s.items)-1])
}

// Resize sets the length to n. New elements are set to fill; existing
// elements up to n are kept. Resizing to zero clears the sequence.
func (s *Sequence[T]) Resize(n int, fill T) error {
	if n <= 0 {
		s.Clear()
		return nil
	}
	if !s.fits(n) {
		return ErrCapacity
	}
	if n < len(s.items) {
		var zero T
		for i := n; i < len(s.items); i++ {
			s.items[i] = zero
		}
		s.items = slices.Clip(s.items[:n])
		return nil
	}
	old := len(s.items)
	s.items = slices.Grow(s.items, n-old)[:n]
	for i := old; i < n; i++ {
		s.items[i] = fill
	}
	return nil
}

// Clear removes every element and releases the backing storage.
func (s *Sequence[T]) Clear() {
	s.items = nil
}
