// Package concurrent composes the independently progressing
// activities of one call into a single task.
package concurrent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Branch is one auxiliary activity of a call: a transform loop on a
// message pipe, or a wait on a latch followed by one. Every suspension
// inside a branch must honor ctx.
type Branch func(ctx context.Context) error

// Call runs a primary activity (forwarding the call to the rest of
// the stack) together with auxiliary branches:
//
//   - Ordinary branches (Pull, Push) are best-effort: a failure while
//     the primary is still in flight cancels the call and becomes its
//     result; a failure after the primary resolved is discarded.
//   - Necessary branches must reach completion before the call
//     resolves, and their failure always becomes the call's result.
//
// If the primary fails, every branch is cancelled and the primary's
// failure is the result.
type Call[T any] struct {
	primary   func(ctx context.Context) (T, error)
	aux       []Branch
	necessary []Branch
}

func TryConcurrently[T any](primary func(ctx context.Context) (T, error)) *Call[T] {
	return &Call[T]{primary: primary}
}

// Pull adds an ordinary branch on the inbound side.
func (c *Call[T]) Pull(b Branch) *Call[T] {
	c.aux = append(c.aux, b)
	return c
}

// Push adds an ordinary branch on the outbound side.
func (c *Call[T]) Push(b Branch) *Call[T] {
	c.aux = append(c.aux, b)
	return c
}

// NecessaryPull adds an inbound branch that must complete even though
// its result is not the call's final result.
func (c *Call[T]) NecessaryPull(b Branch) *Call[T] {
	c.necessary = append(c.necessary, b)
	return c
}

// Run drives the call to completion.
func (c *Call[T]) Run(ctx context.Context) (T, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)

	var aux sync.WaitGroup
	for _, b := range c.aux {
		b := b
		aux.Add(1)
		go func() {
			defer aux.Done()
			if err := b(ctx); err != nil {
				// Fails the call unless the primary resolves first.
				cancel(err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	var result T
	g.Go(func() (err error) {
		result, err = c.primary(gctx)
		return err
	})
	for _, b := range c.necessary {
		b := b
		g.Go(func() error { return b(gctx) })
	}
	err := g.Wait()

	// Release any ordinary branch still waiting; at this point their
	// outcome can no longer affect the call.
	cancel(context.Canceled)
	aux.Wait()

	if err != nil {
		// When a branch failure tore the call down, the primary
		// usually surfaces a bare cancellation; report the branch's
		// error instead.
		if cause := context.Cause(ctx); errors.Is(err, context.Canceled) && !errors.Is(cause, context.Canceled) {
			err = cause
		}
		var zero T
		return zero, err
	}
	return result, nil
}
