// Package loopback joins a client filter stack to a server filter
// stack in process, with no wire in between. Useful for exercising a
// whole pipeline in tests and tooling.
package loopback

import (
	"context"

	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/metadata"
)

// Handler terminates a call on the server side: it reads incoming
// messages, may publish server initial metadata, writes outgoing
// messages and resolves to trailing metadata. The handler owns the
// producer end of its outgoing pipe and must close it when done
// sending.
type Handler func(ctx context.Context, args filters.CallArgs) (*metadata.Batch, error)

// Conn is an in-process connection: the client's outgoing pipe feeds
// the server's incoming pipe directly and vice versa, and the server
// initial metadata latch is shared across both stacks.
type Conn struct {
	client  filters.Filter
	server  filters.Filter
	handler Handler
}

func New(client, server filters.Filter, handler Handler) *Conn {
	return &Conn{client, server, handler}
}

// Call drives one full call through both filter stacks.
func (c *Conn) Call(ctx context.Context, args filters.CallArgs) (*metadata.Batch, error) {
	return c.client.Call(ctx, args, c.transport)
}

// transport plays the role of the wire: it receives the client stack's
// finalized call arguments and presents them, directions flipped, as
// a fresh call to the server stack.
func (c *Conn) transport(ctx context.Context, args filters.CallArgs) (*metadata.Batch, error) {
	serverArgs := filters.CallArgs{
		ClientInitialMetadata: args.ClientInitialMetadata,
		ServerInitialMetadata: args.ServerInitialMetadata,
		IncomingMessages:      args.OutgoingMessages,
		OutgoingMessages:      args.IncomingMessages,
	}
	trailing, err := c.server.Call(ctx, serverArgs, filters.Next(c.handler))
	// The client side must observe a resolved header latch no later
	// than call completion, even when the handler never sent one.
	args.ServerInitialMetadata.TrySet(nil)
	if err != nil {
		args.IncomingMessages.CloseWithError(err)
		args.OutgoingMessages.CloseWithError(err)
		return nil, err
	}
	return trailing, nil
}
