// Package codec is the byte-level boundary between the compression
// filter and the compression libraries. Codecs are synchronous and
// pure: they read src, produce a fresh output slice and keep no
// state between calls beyond reusable encoders.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/vandry/grpc/compression"
)

type codec interface {
	compress(dst *bytes.Buffer, src []byte) error
	decompress(dst *bytes.Buffer, src []byte) error
}

var codecs = [...]codec{
	compression.Deflate: &zlibCodec{},
	compression.Gzip:    &gzipCodec{},
	compression.Zstd:    newZstdCodec(),
	compression.Lz4:     &lz4Codec{},
}

// Compress encodes src with the given algorithm. The boolean result
// reports whether compression was performed: the codec declines when
// the algorithm is None, the encoding fails, or the encoded form
// would be no smaller than the input. On decline src is returned
// untouched.
func Compress(alg compression.Algorithm, src []byte) ([]byte, bool) {
	c := lookup(alg)
	if c == nil {
		return src, false
	}
	var buf bytes.Buffer
	buf.Grow(len(src))
	if err := c.compress(&buf, src); err != nil {
		return src, false
	}
	if buf.Len() >= len(src) {
		return src, false
	}
	return buf.Bytes(), true
}

// Decompress decodes src, which must be the compressed form produced
// by the same algorithm.
func Decompress(alg compression.Algorithm, src []byte) ([]byte, error) {
	c := lookup(alg)
	if c == nil {
		return nil, fmt.Errorf("codec: no decoder for algorithm %s", alg)
	}
	var buf bytes.Buffer
	buf.Grow(len(src) * 2)
	if err := c.decompress(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lookup(alg compression.Algorithm) codec {
	if int(alg) >= len(codecs) {
		return nil
	}
	return codecs[alg]
}

type gzipCodec struct {
	writers sync.Pool
	readers sync.Pool
}

func (c *gzipCodec) compress(dst *bytes.Buffer, src []byte) error {
	w, _ := c.writers.Get().(*gzip.Writer)
	if w == nil {
		w = gzip.NewWriter(dst)
	} else {
		w.Reset(dst)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (c *gzipCodec) decompress(dst *bytes.Buffer, src []byte) error {
	r, _ := c.readers.Get().(*gzip.Reader)
	if r == nil {
		var err error
		r, err = gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return err
		}
	} else if err := r.Reset(bytes.NewReader(src)); err != nil {
		return err
	}
	defer c.readers.Put(r)

	if _, err := io.Copy(dst, r); err != nil {
		return err
	}
	return r.Close()
}

// zlibCodec serves the "deflate" wire name, which is zlib-framed
// deflate, not raw deflate.
type zlibCodec struct {
	writers sync.Pool
}

func (c *zlibCodec) compress(dst *bytes.Buffer, src []byte) error {
	w, _ := c.writers.Get().(*zlib.Writer)
	if w == nil {
		w = zlib.NewWriter(dst)
	} else {
		w.Reset(dst)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (c *zlibCodec) decompress(dst *bytes.Buffer, src []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, r); err != nil {
		return err
	}
	return r.Close()
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	// EncodeAll/DecodeAll on shared instances are safe for
	// concurrent use.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(err)
	}
	return &zstdCodec{enc, dec}
}

func (c *zstdCodec) compress(dst *bytes.Buffer, src []byte) error {
	_, err := dst.Write(c.enc.EncodeAll(src, nil))
	return err
}

func (c *zstdCodec) decompress(dst *bytes.Buffer, src []byte) error {
	b, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return err
	}
	_, err = dst.Write(b)
	return err
}

type lz4Codec struct {
	writers sync.Pool
	readers sync.Pool
}

func (c *lz4Codec) compress(dst *bytes.Buffer, src []byte) error {
	w, _ := c.writers.Get().(*lz4.Writer)
	if w == nil {
		w = lz4.NewWriter(dst)
	} else {
		w.Reset(dst)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (c *lz4Codec) decompress(dst *bytes.Buffer, src []byte) error {
	r, _ := c.readers.Get().(*lz4.Reader)
	if r == nil {
		r = lz4.NewReader(bytes.NewReader(src))
	} else {
		r.Reset(bytes.NewReader(src))
	}
	defer c.readers.Put(r)

	_, err := io.Copy(dst, r)
	return err
}
