package pipe

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestPipeOrder(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	ctx := context.Background()
	p := New[int]()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer p.Close()
		for i := 1; i <= 3; i++ {
			if err := p.Send(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})

	var got []int
	for {
		v, err := p.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		r.NoError(err)
		got = append(got, v)
	}
	r.NoError(g.Wait())
	r.Equal([]int{1, 2, 3}, got)
}

func TestPipeCloseWithError(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	ctx := context.Background()
	p := New[int]()
	errBoom := errors.New("boom")

	p.CloseWithError(errBoom)
	// First error wins.
	p.CloseWithError(errors.New("later"))

	_, err := p.Recv(ctx)
	r.ErrorIs(err, errBoom)
	r.ErrorIs(p.Send(ctx, 1), errBoom)
}

func TestMapperTransformsInOrder(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	ctx := context.Background()

	orig := New[string]()
	intercepted := orig
	m := InterceptSink(&intercepted)
	r.NotSame(orig, intercepted)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer orig.Close()
		for _, s := range []string{"a", "b", "c"} {
			if err := orig.Send(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		return m.TakeAndRun(ctx, func(s string) (string, error) {
			return strings.ToUpper(s), nil
		})
	})

	var got []string
	for {
		v, err := intercepted.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		r.NoError(err)
		got = append(got, v)
	}
	r.NoError(g.Wait())
	r.Equal([]string{"A", "B", "C"}, got)
}

func TestMapperFailureStopsRelay(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	ctx := context.Background()
	errBad := errors.New("bad item")

	orig := New[int]()
	intercepted := orig
	m := InterceptSink(&intercepted)

	sendErrs := make(chan error, 3)
	go func() {
		for i := 1; i <= 3; i++ {
			sendErrs <- orig.Send(ctx, i)
		}
	}()

	runResult := make(chan error, 1)
	go func() {
		runResult <- m.TakeAndRun(ctx, func(v int) (int, error) {
			if v == 2 {
				return 0, errBad
			}
			return v, nil
		})
	}()

	// The first item is relayed...
	v, err := intercepted.Recv(ctx)
	r.NoError(err)
	r.Equal(1, v)

	// ...the failure on the second surfaces as the task result, and
	// the third item is never observed.
	r.ErrorIs(<-runResult, errBad)
	_, err = intercepted.Recv(ctx)
	r.ErrorIs(err, errBad)

	r.NoError(<-sendErrs)
	r.NoError(<-sendErrs)
	r.ErrorIs(<-sendErrs, errBad)
}

func TestMapperTakenTwicePanics(t *testing.T) {
	t.Parallel()

	orig := New[int]()
	p := orig
	m := InterceptSink(&p)

	go orig.Close()
	ctx := context.Background()
	require.NoError(t, m.TakeAndRun(ctx, func(v int) (int, error) { return v, nil }))
	assert.Panics(t, func() {
		_ = m.TakeAndRun(ctx, func(v int) (int, error) { return v, nil })
	})
}

func TestInterceptSource(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	ctx := context.Background()

	orig := New[int]()
	producerSide := orig
	m := InterceptSource(&producerSide)
	r.NotSame(orig, producerSide)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer producerSide.Close()
		return producerSide.Send(ctx, 21)
	})
	g.Go(func() error {
		return m.TakeAndRun(ctx, func(v int) (int, error) { return v * 2, nil })
	})

	v, err := orig.Recv(ctx)
	r.NoError(err)
	r.Equal(42, v)
	_, err = orig.Recv(ctx)
	r.ErrorIs(err, io.EOF)
	r.NoError(g.Wait())
}
