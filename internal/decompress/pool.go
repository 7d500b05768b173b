// Package decompress pools zstd decoders used to inflate export payloads.
package decompress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrSizeMismatch is returned when inflated content does not match the
// size recorded for it.
var ErrSizeMismatch = errors.New("decompressed size mismatch")

// Pool manages reusable zstd decoders.
//
// A nil *Pool is valid and creates a one-off decoder per call.
type Pool struct {
	pool        sync.Pool
	maxMemory   uint64
	concurrency int
	lowmem      bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the decoder concurrency (default: 1).
// Values < 0 are treated as 0 (use GOMAXPROCS).
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n < 0 {
			n = 0
		}
		p.concurrency = n
	}
}

// WithLowmem enables low-memory mode for decoders.
func WithLowmem(enabled bool) Option {
	return func(p *Pool) {
		p.lowmem = enabled
	}
}

// New creates a decoder pool. A maxMemory of 0 disables the decoder
// memory limit.
func New(maxMemory uint64, opts ...Option) *Pool {
	p := &Pool{
		maxMemory:   maxMemory,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pool.New = func() any {
		dec, err := p.newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// Get returns a decoder reading from r and a release function the caller
// must call when done. No release is needed when an error is returned.
func (p *Pool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	if p == nil {
		dec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

// initialGrow caps the up-front allocation in Decode. The recorded size is
// untrusted, so larger outputs grow as bytes actually arrive.
const initialGrow = 1 << 20

// Decode inflates src, which must expand to exactly size bytes.
func (p *Pool) Decode(src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrSizeMismatch, size)
	}
	dec, release, err := p.Get(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer release()

	// Read one byte past size so oversized content is detected.
	limit := int64(size)
	if limit < math.MaxInt64 {
		limit++
	}
	var out bytes.Buffer
	out.Grow(min(size, initialGrow))
	n, err := io.Copy(&out, io.LimitReader(dec, limit))
	if err != nil {
		return nil, err
	}
	switch {
	case n < int64(size):
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrSizeMismatch, n, size)
	case n > int64(size):
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, size)
	}
	return out.Bytes(), nil
}

func (p *Pool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	if p == nil {
		return zstd.NewReader(r)
	}
	opts := []zstd.DOption{
		zstd.WithDecoderConcurrency(p.concurrency),
		zstd.WithDecoderLowmem(p.lowmem),
	}
	if p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}
