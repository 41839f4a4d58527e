// Package compress implements per-message compression for a call
// pipeline: it negotiates the algorithm with the peer over initial
// metadata, compresses outgoing messages, decompresses incoming ones
// and enforces receive-size limits.
package compress

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vandry/grpc/codec"
	"github.com/vandry/grpc/compression"
	"github.com/vandry/grpc/consts"
	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/message"
	"github.com/vandry/grpc/metadata"
	"github.com/vandry/grpc/pipe"
)

// Config is the channel-scoped filter configuration, read once at
// construction and shared read-only by every call on the channel.
type Config struct {
	// MaxRecvSize limits the on-wire size of received messages in
	// bytes. Zero means no channel-level limit.
	MaxRecvSize int
	// DefaultAlgorithm is applied to outgoing messages unless the
	// call carries a per-call override.
	DefaultAlgorithm compression.Algorithm
	// Enabled is the set of algorithms this side accepts. None is
	// always included.
	Enabled compression.AlgorithmSet

	DisableCompression   bool
	DisableDecompression bool
}

type filter struct {
	maxRecvSize         int
	defaultAlgorithm    compression.Algorithm
	enabled             compression.AlgorithmSet
	enableCompression   bool
	enableDecompression bool

	log *zap.Logger
}

func newFilter(cfg Config, log *zap.Logger) *filter {
	log = log.Named("compress")
	def := cfg.DefaultAlgorithm
	if !cfg.Enabled.Has(def) {
		log.Warn("default compression algorithm not enabled: switching to none",
			zap.Stringer("algorithm", def))
		def = compression.None
	}
	return &filter{
		maxRecvSize:         cfg.MaxRecvSize,
		defaultAlgorithm:    def,
		enabled:             cfg.Enabled,
		enableCompression:   !cfg.DisableCompression,
		enableDecompression: !cfg.DisableDecompression,
		log:                 log,
	}
}

// compressMessage compresses m in place with alg. Compression never
// fails: when the codec declines, the payload goes out as is, still
// perfectly usable uncompressed.
func (f *filter) compressMessage(m *message.Message, alg compression.Algorithm) *message.Message {
	if alg == compression.None || !f.enableCompression ||
		m.Flags()&(message.FlagNoCompress|message.FlagCompressed) != 0 {
		return m
	}
	before := m.Len()
	b, ok := codec.Compress(alg, m.Payload())
	if !ok {
		f.log.Debug("codec declined to compress",
			zap.Stringer("algorithm", alg), zap.Int("len", before))
		return m
	}
	m.SetPayload(b)
	m.SetFlags(m.Flags() | message.FlagCompressed)
	f.log.Debug("compressed message",
		zap.Stringer("algorithm", alg),
		zap.Int("before", before), zap.Int("after", m.Len()))
	return m
}

// decompressMessage undoes alg on m. maxRecvSize, when positive, is
// checked against the on-wire length before any decompression work:
// it is a cheap pre-filter against oversized inputs whether or not
// they are compressed.
func (f *filter) decompressMessage(m *message.Message, alg compression.Algorithm, maxRecvSize int) (*message.Message, error) {
	if maxRecvSize > 0 && m.Len() > maxRecvSize {
		return nil, status.Errorf(codes.ResourceExhausted,
			"received message larger than max (%d vs. %d)", m.Len(), maxRecvSize)
	}
	if !f.enableDecompression || m.Flags()&message.FlagCompressed == 0 {
		return m, nil
	}
	b, err := codec.Decompress(alg, m.Payload())
	if err != nil {
		return nil, status.Errorf(codes.Internal,
			"unexpected error decompressing data for algorithm %s", alg)
	}
	m.SetPayload(b)
	m.SetFlags(m.Flags()&^message.FlagCompressed | message.FlagWasCompressed)
	return m, nil
}

// effectiveMaxRecvSize combines the channel-level limit with a
// per-call override from method configuration; the smaller of the two
// wins.
func (f *filter) effectiveMaxRecvSize(ctx context.Context) int {
	limit := f.maxRecvSize
	if n, ok := filters.MaxRecvSize(ctx); ok && (limit == 0 || n < limit) {
		limit = n
	}
	return limit
}

// peerAlgorithm reads the algorithm the peer announced in its initial
// metadata. Absent or unknown announcements degrade to None.
func (f *filter) peerAlgorithm(md *metadata.Batch) compression.Algorithm {
	v, ok := md.Get(consts.EncodingKey)
	if !ok {
		return compression.None
	}
	alg, ok := compression.Parse(v)
	if !ok {
		f.log.Warn("peer announced unknown compression algorithm",
			zap.String("algorithm", v))
		return compression.None
	}
	return alg
}

// compressLoop owns the outgoing-message interceptor from call start
// until the compression algorithm is known.
type compressLoop struct {
	f      *filter
	mapper *pipe.Mapper[*message.Message]
}

// take resolves the algorithm against the outgoing initial metadata,
// announces it, and returns the branch that compresses every
// subsequent outgoing message. The metadata is mutated here, not in
// the returned branch, so the announcement is in place before the
// batch can be sent.
func (l compressLoop) take(outgoing *metadata.Batch) func(ctx context.Context) error {
	alg := l.f.defaultAlgorithm
	if v, ok := outgoing.Take(consts.InternalEncodingRequestKey); ok {
		if a, parsed := compression.Parse(v); parsed {
			alg = a
		} else {
			l.f.log.Warn("ignoring unknown compression algorithm override",
				zap.String("algorithm", v))
		}
	}
	// Convey the accepted algorithms even when sending uncompressed.
	outgoing.Set(consts.AcceptEncodingKey, l.f.enabled.String())
	if alg != compression.None {
		outgoing.Set(consts.EncodingKey, alg.String())
	}
	return func(ctx context.Context) error {
		return l.mapper.TakeAndRun(ctx, func(m *message.Message) (*message.Message, error) {
			return l.f.compressMessage(m, alg), nil
		})
	}
}

// decompressLoop owns the incoming-message interceptor until the
// peer's algorithm is known.
type decompressLoop struct {
	f      *filter
	mapper *pipe.Mapper[*message.Message]
}

// take fixes the peer-announced algorithm and the resolved receive
// limit, and returns the branch that decompresses every incoming
// message.
func (l decompressLoop) take(ctx context.Context, alg compression.Algorithm) func(ctx context.Context) error {
	maxRecvSize := l.f.effectiveMaxRecvSize(ctx)
	return func(ctx context.Context) error {
		return l.mapper.TakeAndRun(ctx, func(m *message.Message) (*message.Message, error) {
			return l.f.decompressMessage(m, alg, maxRecvSize)
		})
	}
}
