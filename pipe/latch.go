package pipe

import (
	"context"
	"sync/atomic"
)

// Latch is a single-assignment cell scoped to one call: the first Set
// publishes a value permanently and wakes every waiter, present and
// future. Setting twice is a programming error.
type Latch[T any] struct {
	set   chan struct{}
	value T
	has   atomic.Bool
}

func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{set: make(chan struct{})}
}

func (l *Latch[T]) Set(v T) {
	if !l.TrySet(v) {
		panic("assertion error: latch set twice")
	}
}

// TrySet stores v unless a value already exists. Transports use it to
// resolve a latch that the rest of the stack may or may not have
// resolved already.
func (l *Latch[T]) TrySet(v T) bool {
	if !l.has.CompareAndSwap(false, true) {
		return false
	}
	l.value = v
	close(l.set)
	return true
}

// Wait suspends until a value exists. Every waiter observes the same
// value. A value already set wins over a concurrent cancellation.
func (l *Latch[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-l.set:
		return l.value, nil
	default:
	}
	select {
	case <-l.set:
		return l.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get reports the value without waiting.
func (l *Latch[T]) Get() (T, bool) {
	select {
	case <-l.set:
		return l.value, true
	default:
		var zero T
		return zero, false
	}
}
