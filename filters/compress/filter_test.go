package compress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vandry/grpc/codec"
	"github.com/vandry/grpc/compression"
	"github.com/vandry/grpc/consts"
	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/message"
	"github.com/vandry/grpc/metadata"
)

func testFilter(t *testing.T, cfg Config) *filter {
	t.Helper()
	return newFilter(cfg, zaptest.NewLogger(t))
}

func compressible() []byte {
	b := make([]byte, 4096)
	for i := range b {
		b[i] = byte(i % 16)
	}
	return b
}

func TestDefaultAlgorithmCorrection(t *testing.T) {
	t.Parallel()

	a := assert.New(t)

	// A default outside the enabled set is downgraded to none.
	f := testFilter(t, Config{
		DefaultAlgorithm: compression.Gzip,
		Enabled:          compression.NewSet(compression.Deflate),
	})
	a.Equal(compression.None, f.defaultAlgorithm)

	f = testFilter(t, Config{
		DefaultAlgorithm: compression.Gzip,
		Enabled:          compression.NewSet(compression.Gzip),
	})
	a.Equal(compression.Gzip, f.defaultAlgorithm)
}

func TestCompressMessageSkips(t *testing.T) {
	t.Parallel()

	payload := compressible()
	cases := []struct {
		name  string
		cfg   Config
		alg   compression.Algorithm
		flags message.Flags
	}{
		{"algorithm none", Config{Enabled: compression.AllSet()}, compression.None, 0},
		{"no-compress flag", Config{Enabled: compression.AllSet()}, compression.Gzip, message.FlagNoCompress},
		{"already compressed", Config{Enabled: compression.AllSet()}, compression.Gzip, message.FlagCompressed},
		{"compression disabled", Config{Enabled: compression.AllSet(), DisableCompression: true}, compression.Gzip, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := assert.New(t)
			f := testFilter(t, tc.cfg)
			m := message.New(payload, tc.flags)
			out := f.compressMessage(m, tc.alg)

			// Byte-identical and flag-identical.
			a.Same(m, out)
			a.Equal(payload, out.Payload())
			a.Equal(tc.flags, out.Flags())
		})
	}
}

func TestCompressMessage(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	f := testFilter(t, Config{Enabled: compression.AllSet()})
	payload := compressible()

	m := f.compressMessage(message.New(payload, 0), compression.Gzip)
	r.NotZero(m.Flags() & message.FlagCompressed)
	r.Less(m.Len(), len(payload))

	restored, err := codec.Decompress(compression.Gzip, m.Payload())
	r.NoError(err)
	r.Equal(payload, restored)
}

func TestCompressMessageCodecDeclines(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	f := testFilter(t, Config{Enabled: compression.AllSet()})

	// Too small to shrink: forwarded unchanged, no error.
	payload := []byte{1, 2, 3}
	m := f.compressMessage(message.New(payload, 0), compression.Gzip)
	r.Equal(payload, m.Payload())
	r.Zero(m.Flags())
}

func TestDecompressMessage(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	f := testFilter(t, Config{Enabled: compression.AllSet()})
	payload := compressible()

	m := f.compressMessage(message.New(payload, 0), compression.Zstd)
	out, err := f.decompressMessage(m, compression.Zstd, 0)
	r.NoError(err)
	r.Equal(payload, out.Payload())
	r.Zero(out.Flags() & message.FlagCompressed)
	r.NotZero(out.Flags() & message.FlagWasCompressed)
}

func TestDecompressMessageSizeCheckFirst(t *testing.T) {
	t.Parallel()

	r := require.New(t)
	f := testFilter(t, Config{Enabled: compression.AllSet()})

	// The payload is flagged compressed but is garbage: if the codec
	// ran, the result would be Internal. The on-wire size check must
	// fire first.
	garbage := make([]byte, 101)
	m := message.New(garbage, message.FlagCompressed)
	_, err := f.decompressMessage(m, compression.Gzip, 100)
	r.Equal(codes.ResourceExhausted, status.Code(err))

	// One byte under the limit is fine size-wise and only then does
	// decompression fail.
	_, err = f.decompressMessage(message.New(garbage[:100], message.FlagCompressed), compression.Gzip, 100)
	r.Equal(codes.Internal, status.Code(err))
}

func TestDecompressMessageSkips(t *testing.T) {
	t.Parallel()

	a := assert.New(t)
	garbage := []byte("not compressed at all")

	// No Compressed flag: never decompressed, whatever the algorithm.
	f := testFilter(t, Config{Enabled: compression.AllSet()})
	m, err := f.decompressMessage(message.New(garbage, 0), compression.Gzip, 0)
	a.NoError(err)
	a.Equal(garbage, m.Payload())
	a.Zero(m.Flags())

	// Decompression disabled: passed through even when flagged.
	f = testFilter(t, Config{Enabled: compression.AllSet(), DisableDecompression: true})
	m, err = f.decompressMessage(message.New(garbage, message.FlagCompressed), compression.Gzip, 0)
	a.NoError(err)
	a.Equal(garbage, m.Payload())
	a.Equal(message.FlagCompressed, m.Flags())
}

func TestEffectiveMaxRecvSize(t *testing.T) {
	t.Parallel()

	a := assert.New(t)
	ctx := context.Background()

	f := testFilter(t, Config{Enabled: compression.AllSet(), MaxRecvSize: 100})
	a.Equal(100, f.effectiveMaxRecvSize(ctx))
	a.Equal(50, f.effectiveMaxRecvSize(filters.WithMaxRecvSize(ctx, 50)))
	a.Equal(100, f.effectiveMaxRecvSize(filters.WithMaxRecvSize(ctx, 200)))

	f = testFilter(t, Config{Enabled: compression.AllSet()})
	a.Equal(0, f.effectiveMaxRecvSize(ctx))
	a.Equal(50, f.effectiveMaxRecvSize(filters.WithMaxRecvSize(ctx, 50)))
}

func TestCompressLoopTake(t *testing.T) {
	t.Parallel()

	a := assert.New(t)
	f := testFilter(t, Config{
		DefaultAlgorithm: compression.Deflate,
		Enabled:          compression.NewSet(compression.Gzip, compression.Deflate),
	})

	// The per-call override beats the default and is consumed.
	md := metadata.Pairs(consts.InternalEncodingRequestKey, "gzip")
	compressLoop{f, nil}.take(md)

	_, ok := md.Get(consts.InternalEncodingRequestKey)
	a.False(ok)
	v, ok := md.Get(consts.EncodingKey)
	a.True(ok)
	a.Equal("gzip", v)
	v, ok = md.Get(consts.AcceptEncodingKey)
	a.True(ok)
	a.Equal("identity,deflate,gzip", v)

	// Without an override the default is announced.
	md = metadata.New()
	compressLoop{f, nil}.take(md)
	v, _ = md.Get(consts.EncodingKey)
	a.Equal("deflate", v)

	// None is never announced explicitly.
	f = testFilter(t, Config{Enabled: compression.AllSet()})
	md = metadata.New()
	compressLoop{f, nil}.take(md)
	_, ok = md.Get(consts.EncodingKey)
	a.False(ok)
	_, ok = md.Get(consts.AcceptEncodingKey)
	a.True(ok)
}

func TestPeerAlgorithm(t *testing.T) {
	t.Parallel()

	a := assert.New(t)
	f := testFilter(t, Config{Enabled: compression.AllSet()})

	a.Equal(compression.None, f.peerAlgorithm(metadata.New()))
	a.Equal(compression.Zstd, f.peerAlgorithm(metadata.Pairs(consts.EncodingKey, "zstd")))
	a.Equal(compression.None, f.peerAlgorithm(metadata.Pairs(consts.EncodingKey, "martian")))
}
