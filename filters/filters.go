// Package filters defines the per-call arguments a filter may inspect
// or intercept before handing a call to the rest of the stack.
package filters

import (
	"context"

	"github.com/vandry/grpc/message"
	"github.com/vandry/grpc/metadata"
	"github.com/vandry/grpc/pipe"
)

// CallArgs carries the plumbing of one call. A filter receives it,
// swaps in its own interceptors, and passes the modified copy down.
type CallArgs struct {
	// ClientInitialMetadata is mutable until the call is forwarded;
	// after that, mutating it is a logic error.
	ClientInitialMetadata *metadata.Batch

	// ServerInitialMetadata resolves once the server side decides its
	// initial metadata. The transport must resolve it (a nil batch is
	// fine) no later than call completion, so waiters never outlive
	// the call.
	ServerInitialMetadata *pipe.Latch[*metadata.Batch]

	IncomingMessages *pipe.Pipe[*message.Message]
	OutgoingMessages *pipe.Pipe[*message.Message]
}

// Next forwards a call to the rest of the stack. It resolves to the
// call's trailing metadata.
type Next func(ctx context.Context, args CallArgs) (*metadata.Batch, error)

// Filter processes one call. Implementations hold channel-scoped
// configuration only; all per-call state lives in CallArgs and on the
// task tree driving the call.
type Filter interface {
	Call(ctx context.Context, args CallArgs, next Next) (*metadata.Batch, error)
}

type maxRecvSizeKey struct{}

// WithMaxRecvSize attaches a per-call receive-size limit in bytes,
// typically sourced from method or service configuration by an outer
// layer.
func WithMaxRecvSize(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, maxRecvSizeKey{}, n)
}

// MaxRecvSize reports the per-call receive-size limit, if any.
func MaxRecvSize(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(maxRecvSizeKey{}).(int)
	return n, ok
}
