package compress

import (
	"context"

	"go.uber.org/zap"

	"github.com/vandry/grpc/concurrent"
	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/metadata"
	"github.com/vandry/grpc/pipe"
)

// Server is the server-side compression filter.
type Server struct {
	f *filter
}

func NewServer(cfg Config, log *zap.Logger) *Server {
	return &Server{newFilter(cfg, log)}
}

// Call decompresses incoming messages with the algorithm the client
// announced, which is known up front. Outgoing compression has to
// wait: the server's initial metadata is produced by the rest of the
// stack later in the call, and the filter must announce the algorithm
// on that batch before the transport writes it. The rest of the stack
// therefore publishes into a shadow latch; once it resolves, the
// filter finalizes the batch and forwards it into the real latch the
// transport waits on.
func (s *Server) Call(ctx context.Context, args filters.CallArgs, next filters.Next) (*metadata.Batch, error) {
	decompress := decompressLoop{s.f, pipe.InterceptSink(&args.IncomingMessages)}.
		take(ctx, s.f.peerAlgorithm(args.ClientInitialMetadata))
	compress := compressLoop{s.f, pipe.InterceptSource(&args.OutgoingMessages)}

	writeLatch := args.ServerInitialMetadata
	readLatch := pipe.NewLatch[*metadata.Batch]()
	args.ServerInitialMetadata = readLatch

	return concurrent.TryConcurrently(func(ctx context.Context) (*metadata.Batch, error) {
		return next(ctx, args)
	}).Pull(decompress).Push(func(ctx context.Context) error {
		md, err := readLatch.Wait(ctx)
		if err != nil {
			// The call ended before the rest of the stack decided on
			// initial metadata; no message can have needed
			// compression.
			return nil
		}
		if md == nil {
			writeLatch.Set(nil)
			return nil
		}
		run := compress.take(md)
		writeLatch.Set(md)
		return run(ctx)
	}).Run(ctx)
}
