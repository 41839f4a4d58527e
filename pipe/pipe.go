// Package pipe provides the per-call plumbing primitives: an ordered
// single-producer single-consumer pipe with interception, and a
// single-assignment latch.
package pipe

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned from Send after the pipe was torn down
// without a more specific error.
var ErrClosed = errors.New("pipe: closed")

// Pipe is an ordered single-producer single-consumer stream of items
// for one direction of a call. Send blocks until the consumer is
// ready to take the item, so the consumer governs pacing.
type Pipe[T any] struct {
	ch   chan T
	done chan struct{}

	closeOnce sync.Once
	err       error // set before done is closed
}

func New[T any]() *Pipe[T] {
	return &Pipe[T]{ch: make(chan T), done: make(chan struct{})}
}

// Send relays one item to the consumer. A ready consumer wins over a
// concurrent teardown so that items already at the hand-off point are
// delivered.
func (p *Pipe[T]) Send(ctx context.Context, v T) error {
	select {
	case p.ch <- v:
		return nil
	default:
	}
	select {
	case p.ch <- v:
		return nil
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next item in order. io.EOF reports a clean end of
// stream; any other error means the pipe was torn down. An item (or
// close) already at the hand-off point wins over a concurrent
// teardown.
func (p *Pipe[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-p.ch:
		if !ok {
			return zero, io.EOF
		}
		return v, nil
	default:
	}
	select {
	case v, ok := <-p.ch:
		if !ok {
			return zero, io.EOF
		}
		return v, nil
	case <-p.done:
		return zero, p.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close ends the stream cleanly: the consumer drains any item already
// in flight and then observes io.EOF. Only the producer may call it,
// and only once.
func (p *Pipe[T]) Close() { close(p.ch) }

// CloseWithError tears the pipe down: both ends unblock with err and
// no further items are relayed. Safe to call from either end and more
// than once; the first error wins.
func (p *Pipe[T]) CloseWithError(err error) {
	p.closeOnce.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		p.err = err
		close(p.done)
	})
}

// Mapper intercepts a pipe: every item sent after interception passes
// through a transform, in order, before the original consumer
// observes it. The transform only runs when the next item is about to
// be relayed, so backpressure is preserved end to end.
type Mapper[T any] struct {
	src   *Pipe[T]
	dst   *Pipe[T]
	taken atomic.Bool
}

// InterceptSource intercepts *p for a downstream producer: *p is
// replaced with a fresh pipe handed to the producer, and items it
// sends are transformed before the original consumer sees them.
func InterceptSource[T any](p **Pipe[T]) *Mapper[T] {
	m := &Mapper[T]{src: New[T](), dst: *p}
	*p = m.src
	return m
}

// InterceptSink intercepts *p for a downstream consumer: *p is
// replaced with a fresh pipe handed to the consumer, and items from
// the original producer are transformed before it reads them.
func InterceptSink[T any](p **Pipe[T]) *Mapper[T] {
	m := &Mapper[T]{src: *p, dst: New[T]()}
	*p = m.dst
	return m
}

// TakeAndRun consumes the mapper and drives the transform loop until
// the source closes cleanly or something fails. On transform failure
// relaying stops, both pipes are torn down with the error and the
// error is returned. TakeAndRun may be called at most once.
func (m *Mapper[T]) TakeAndRun(ctx context.Context, f func(T) (T, error)) error {
	if !m.taken.CompareAndSwap(false, true) {
		panic("assertion error: pipe mapper taken twice")
	}
	for {
		v, err := m.src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			m.dst.Close()
			return nil
		}
		if err != nil {
			return m.fail(err)
		}
		out, err := f(v)
		if err != nil {
			return m.fail(err)
		}
		if err := m.dst.Send(ctx, out); err != nil {
			return m.fail(err)
		}
	}
}

func (m *Mapper[T]) fail(err error) error {
	m.src.CloseWithError(err)
	m.dst.CloseWithError(err)
	return err
}
