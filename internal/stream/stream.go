// Package stream provides positional reads over an in-memory package buffer.
package stream

import (
	"io"

	"github.com/meigma/pkgload/decode"
)

// Stream is a named, read-only view of a package buffer.
//
// Every region returned by ReadAt has the attached decoder applied, so
// consumers only ever see decoded bytes. The underlying buffer is never
// modified. Stream is safe for concurrent use.
type Stream struct {
	name    string
	data    []byte
	decoder decode.Decoder
}

// Interface compliance.
var _ io.ReaderAt = (*Stream)(nil)

// New returns a stream over data tagged with name. dec may be nil.
//
// The stream retains data; callers must not modify it afterwards.
func New(name string, data []byte, dec decode.Decoder) *Stream {
	return &Stream{name: name, data: data, decoder: dec}
}

// Name returns the name the stream was created with.
func (s *Stream) Name() string {
	return s.name
}

// Size returns the length of the buffer in bytes.
func (s *Stream) Size() int64 {
	return int64(len(s.data))
}

// Decoder returns the attached decoder, or nil.
func (s *Stream) Decoder() decode.Decoder {
	return s.decoder
}

// ReadAt implements io.ReaderAt.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if off >= int64(len(s.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if s.decoder != nil {
		s.decoder.DecodeRegion(off, p[:n])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Section returns n decoded bytes starting at off.
func (s *Stream) Section(off, n int64) ([]byte, error) {
	if n < 0 || off < 0 || off > s.Size()-n {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := s.ReadAt(buf, off); err != nil && n > 0 {
		return nil, err
	}
	return buf, nil
}
