package format

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meigma/pkgload/internal/decompress"
)

// ReadPayload reads, inflates and verifies the payload of e.
//
// pool may be nil, in which case a one-off decoder is used for compressed
// payloads. maxSize bounds the inflated size; 0 disables the limit.
func ReadPayload(src io.ReaderAt, h *Header, e *Export, pool *decompress.Pool, maxSize uint64) ([]byte, error) {
	if e.Size > math.MaxInt || e.OriginalSize > math.MaxInt {
		return nil, fmt.Errorf("%w: export %q is too large", ErrMalformed, e.Name)
	}
	if maxSize > 0 && e.OriginalSize > maxSize {
		return nil, fmt.Errorf("%w: export %q inflates to %d bytes, limit is %d", ErrMalformed, e.Name, e.OriginalSize, maxSize)
	}

	raw := make([]byte, e.Size)
	if n, err := src.ReadAt(raw, h.DataOffset+int64(e.Offset)); err != nil { //nolint:gosec // offset validated by Parse
		if !errors.Is(err, io.EOF) || n != len(raw) {
			return nil, fmt.Errorf("read export %q: %w", e.Name, err)
		}
	}

	content := raw
	switch e.Compression {
	case CompressionNone:
	case CompressionZstd:
		out, err := pool.Decode(raw, int(e.OriginalSize))
		if err != nil {
			return nil, fmt.Errorf("%w: export %q: %v", ErrDecompression, e.Name, err)
		}
		content = out
	default:
		return nil, fmt.Errorf("%w: export %q uses unknown compression %d", ErrMalformed, e.Name, e.Compression)
	}

	if e.Digest != "" {
		verifier := e.Digest.Verifier()
		_, _ = verifier.Write(content) //nolint:errcheck // hash writes never fail
		if !verifier.Verified() {
			return nil, fmt.Errorf("%w: export %q", ErrDigestMismatch, e.Name)
		}
	}
	return content, nil
}
