package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vandry/grpc/compression"
	"github.com/vandry/grpc/consts"
	"github.com/vandry/grpc/filters"
	"github.com/vandry/grpc/filters/compress"
	"github.com/vandry/grpc/message"
	"github.com/vandry/grpc/metadata"
	"github.com/vandry/grpc/pipe"
)

type RunCommand struct {
	Algorithms []string `default:"gzip,deflate,zstd,lz4" help:"Algorithms to measure."`
	File       *os.File `help:"Measure a file instead of synthetic data."`
	Size       int      `default:"65536" help:"Synthetic payload size in bytes."`
	Count      int      `default:"16" help:"Messages per run."`
	Verbose    bool     `help:"Verbose output."`
}

func (c *RunCommand) Run(ctx context.Context) error {
	log := zap.NewNop()
	if c.Verbose {
		log = zap.Must(zap.NewDevelopment())
	}

	payload, err := c.payload()
	if err != nil {
		return err
	}

	var errs error
	for _, name := range c.Algorithms {
		alg, ok := compression.Parse(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("unknown algorithm %q", name))
			continue
		}
		st, err := measure(ctx, log, alg, payload, c.Count)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", alg, err))
			continue
		}
		savings := 1 - float64(st.wire)/float64(st.raw)
		fmt.Printf("%-8s %s -> %s on wire (%.1f%% savings, %d/%d messages compressed)\n",
			alg,
			humanize.IBytes(uint64(st.raw)),
			humanize.IBytes(uint64(st.wire)),
			savings*100,
			st.compressed, c.Count,
		)
	}
	return errs
}

func (c *RunCommand) payload() ([]byte, error) {
	if c.File != nil {
		defer c.File.Close()
		b, err := io.ReadAll(c.File)
		if err != nil {
			return nil, fmt.Errorf("reading payload file: %w", err)
		}
		return b, nil
	}
	// Synthetic payload with some redundancy, so codecs have
	// something to work with.
	words := []string{"status", "metadata", "payload", "stream", "filter", "channel"}
	var b bytes.Buffer
	for i := 0; b.Len() < c.Size; i++ {
		b.WriteString(words[i%len(words)])
		b.WriteByte(byte(' ' + i%64))
	}
	return b.Bytes()[:c.Size], nil
}

type runStats struct {
	raw        int
	wire       int
	compressed int
}

// measure drives count copies of payload through the client
// compression filter against an echoing wire and records on-wire
// sizes.
func measure(ctx context.Context, log *zap.Logger, alg compression.Algorithm, payload []byte, count int) (runStats, error) {
	client := compress.NewClient(compress.Config{
		DefaultAlgorithm: alg,
		Enabled:          compression.AllSet(),
	}, log)

	args := filters.CallArgs{
		ClientInitialMetadata: metadata.New(),
		ServerInitialMetadata: pipe.NewLatch[*metadata.Batch](),
		IncomingMessages:      pipe.New[*message.Message](),
		OutgoingMessages:      pipe.New[*message.Message](),
	}
	appIn := args.IncomingMessages
	appOut := args.OutgoingMessages

	var st runStats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := client.Call(ctx, args, func(ctx context.Context, args filters.CallArgs) (*metadata.Batch, error) {
			// The wire side: announce the same algorithm back and
			// echo every (still compressed) message.
			args.ServerInitialMetadata.Set(metadata.Pairs(consts.EncodingKey, alg.String()))
			defer args.IncomingMessages.Close()
			for {
				m, err := args.OutgoingMessages.Recv(ctx)
				if errors.Is(err, io.EOF) {
					return metadata.Pairs("grpc-status", "0"), nil
				}
				if err != nil {
					return nil, err
				}
				st.wire += m.Len()
				if m.Flags()&message.FlagCompressed != 0 {
					st.compressed++
				}
				if err := args.IncomingMessages.Send(ctx, m); err != nil {
					return nil, err
				}
			}
		})
		return err
	})
	g.Go(func() error {
		for i := 0; i < count; i++ {
			if err := appOut.Send(ctx, message.New(payload, 0)); err != nil {
				return err
			}
			st.raw += len(payload)
		}
		appOut.Close()
		for i := 0; i < count; i++ {
			m, err := appIn.Recv(ctx)
			if err != nil {
				return err
			}
			if !bytes.Equal(m.Payload(), payload) {
				return errors.New("payload mismatch after round trip")
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return runStats{}, err
	}
	return st, nil
}
