package compress

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vandry/grpc/concurrent"
	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/metadata"
	"github.com/vandry/grpc/pipe"
)

// Client is the client-side compression filter.
type Client struct {
	f *filter
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{newFilter(cfg, log)}
}

// Call negotiates compression for one outgoing call. The client
// originates the call, so the algorithm is resolved and announced on
// the client initial metadata before anything is forwarded; incoming
// decompression waits until the server announces its own algorithm.
func (c *Client) Call(ctx context.Context, args filters.CallArgs, next filters.Next) (*metadata.Batch, error) {
	compress := compressLoop{c.f, pipe.InterceptSink(&args.OutgoingMessages)}.
		take(args.ClientInitialMetadata)
	decompress := decompressLoop{c.f, pipe.InterceptSource(&args.IncomingMessages)}
	serverInitialMetadata := args.ServerInitialMetadata

	return concurrent.TryConcurrently(func(ctx context.Context) (*metadata.Batch, error) {
		return next(ctx, args)
	}).NecessaryPull(func(ctx context.Context) error {
		md, err := serverInitialMetadata.Wait(ctx)
		if err != nil || md == nil {
			// The call ended before headers arrived; there is
			// nothing to decompress.
			return nil
		}
		err = decompress.take(ctx, c.f.peerAlgorithm(md))(ctx)
		if errors.Is(err, context.Canceled) {
			// Teardown reached the loop after the call's outcome was
			// already decided elsewhere.
			return nil
		}
		return err
	}).Push(compress).Run(ctx)
}
