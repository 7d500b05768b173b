package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/pkgload/internal/fb"
)

// Source provides random access to package bytes.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Parse reads and validates the package header from src.
//
// Only the preamble and header are read; export payloads stay in the source
// until ReadPayload is called. All structural problems are reported as
// ErrMalformed.
func Parse(src Source) (*Header, error) {
	size := src.Size()
	if size < PreambleSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the preamble", ErrMalformed, size)
	}

	var pre [PreambleSize]byte
	if _, err := src.ReadAt(pre[:], 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read preamble: %v", ErrMalformed, err)
	}
	if string(pre[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrMalformed, pre[:4])
	}

	headerLen := int64(binary.LittleEndian.Uint32(pre[4:]))
	if headerLen == 0 || headerLen > size-PreambleSize {
		return nil, fmt.Errorf("%w: header length %d exceeds package size %d", ErrMalformed, headerLen, size)
	}

	buf := make([]byte, headerLen)
	if _, err := src.ReadAt(buf, PreambleSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformed, err)
	}

	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}
	h.DataOffset = PreambleSize + headerLen

	if err := h.validate(size); err != nil {
		return nil, err
	}
	return h, nil
}

// decodeHeader copies the FlatBuffers header into a Header.
func decodeHeader(buf []byte) (h *Header, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = fmt.Errorf("%w: failed to parse header: %v", ErrMalformed, r)
		}
	}()

	root := fb.GetRootAsHeader(buf, 0)
	h = &Header{
		Version:  root.Version(),
		Name:     string(root.Name()),
		Flags:    root.Flags(),
		DataSize: root.DataSize(),
	}

	// Each vector element is a 4-byte offset into buf.
	limit := len(buf) / 4
	nexp, nimp := root.ExportsLength(), root.ImportsLength()
	if nexp < 0 || nexp > limit {
		return nil, fmt.Errorf("%w: export count %d exceeds header size %d", ErrMalformed, nexp, len(buf))
	}
	if nimp < 0 || nimp > limit {
		return nil, fmt.Errorf("%w: import count %d exceeds header size %d", ErrMalformed, nimp, len(buf))
	}

	var e fb.Export
	h.Exports = make([]Export, 0, nexp)
	for i := range nexp {
		if !root.Exports(&e, i) {
			break
		}
		h.Exports = append(h.Exports, Export{
			Name:         string(e.Name()),
			Class:        string(e.Class()),
			Offset:       e.Offset(),
			Size:         e.Size(),
			OriginalSize: e.OriginalSize(),
			Compression:  Compression(e.Compression()),
			Digest:       digest.Digest(e.Digest()),
		})
	}

	var imp fb.Import
	h.Imports = make([]Import, 0, nimp)
	for i := range nimp {
		if !root.Imports(&imp, i) {
			break
		}
		h.Imports = append(h.Imports, Import{
			Package: string(imp.Package()),
			Name:    string(imp.Name()),
			Class:   string(imp.Class()),
		})
	}
	return h, nil
}

// validate checks that the header describes a package of the given size.
func (h *Header) validate(size int64) error {
	if h.Version == 0 || h.Version > Version {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, h.Version)
	}
	if h.DataSize > math.MaxInt64 || int64(h.DataSize) != size-h.DataOffset { //nolint:gosec // bounded above
		return fmt.Errorf("%w: data section is %d bytes, header records %d", ErrMalformed, size-h.DataOffset, h.DataSize)
	}

	names := make(map[string]struct{}, len(h.Exports))
	for i := range h.Exports {
		e := &h.Exports[i]
		if e.Name == "" {
			return fmt.Errorf("%w: export %d has no name", ErrMalformed, i)
		}
		if _, dup := names[e.Name]; dup {
			return fmt.Errorf("%w: duplicate export %q", ErrMalformed, e.Name)
		}
		names[e.Name] = struct{}{}

		end := e.Offset + e.Size
		if end < e.Offset || end > h.DataSize {
			return fmt.Errorf("%w: export %q range [%d, %d) outside data section", ErrMalformed, e.Name, e.Offset, end)
		}
		switch e.Compression {
		case CompressionNone:
			if e.Size != e.OriginalSize {
				return fmt.Errorf("%w: export %q stored size %d != original size %d", ErrMalformed, e.Name, e.Size, e.OriginalSize)
			}
		case CompressionZstd:
		default:
			return fmt.Errorf("%w: export %q uses unknown compression %d", ErrMalformed, e.Name, e.Compression)
		}
		if e.Digest != "" {
			if err := e.Digest.Validate(); err != nil {
				return fmt.Errorf("%w: export %q digest: %v", ErrMalformed, e.Name, err)
			}
		}
	}

	for i, imp := range h.Imports {
		if imp.Package == "" || imp.Name == "" {
			return fmt.Errorf("%w: import %d is missing a package or object name", ErrMalformed, i)
		}
	}
	return nil
}
