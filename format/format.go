package format

import (
	_ "crypto/sha256" // register digest algorithms
	_ "crypto/sha512"
	"errors"

	"github.com/opencontainers/go-digest"
)

// Magic identifies a package file.
const Magic = "UPKG"

// Version is the header version written by Encode.
const Version = 1

// PreambleSize is the size of the magic and header length prefix.
const PreambleSize = 8

// Sentinel errors.
var (
	// ErrMalformed is returned when a buffer is not a well-formed package.
	ErrMalformed = errors.New("pkgload: malformed package")

	// ErrDigestMismatch is returned when export content does not match its digest.
	ErrDigestMismatch = errors.New("pkgload: export digest mismatch")

	// ErrDecompression is returned when an export payload fails to inflate.
	ErrDecompression = errors.New("pkgload: decompression failed")
)

// Compression identifies the compression algorithm used for an export payload.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Export describes one object stored in the data section.
type Export struct {
	// Name identifies the object within its package.
	Name string

	// Class is the object's type name.
	Class string

	// Offset is the payload offset relative to the start of the data section.
	Offset uint64

	// Size is the stored payload size. For compressed payloads this is the
	// compressed size.
	Size uint64

	// OriginalSize is the payload size after decompression.
	OriginalSize uint64

	// Compression is the algorithm the payload is stored with.
	Compression Compression

	// Digest addresses the uncompressed payload. Empty means unverified.
	Digest digest.Digest
}

// Import references an object exported by another package.
type Import struct {
	// Package is the name of the package that exports the object.
	Package string

	// Name is the exported object's name.
	Name string

	// Class is the expected class of the object. Empty matches any class.
	Class string
}

// Header is the parsed metadata of a package file.
type Header struct {
	Version uint32
	Name    string
	Flags   uint32

	// DataOffset is the absolute offset of the data section in the file.
	DataOffset int64

	// DataSize is the length of the data section in bytes.
	DataSize uint64

	Exports []Export
	Imports []Import
}

// Export returns the export with the given name.
func (h *Header) Export(name string) (Export, bool) {
	for i := range h.Exports {
		if h.Exports[i].Name == name {
			return h.Exports[i], true
		}
	}
	return Export{}, false
}

// ImportedPackages returns the distinct package names referenced by the
// import table, in first-reference order.
func (h *Header) ImportedPackages() []string {
	seen := make(map[string]struct{}, len(h.Imports))
	var names []string
	for _, imp := range h.Imports {
		if _, ok := seen[imp.Package]; ok {
			continue
		}
		seen[imp.Package] = struct{}{}
		names = append(names, imp.Package)
	}
	return names
}
