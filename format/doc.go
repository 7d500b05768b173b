//go:generate flatc --go --go-namespace fb -o ../internal ../schema/package.fbs

// Package format reads and writes the pkgload package file layout.
//
// A package file is a small preamble followed by a FlatBuffers header and a
// data section:
//
//	offset 0   "UPKG"
//	offset 4   uint32 little-endian header length H
//	offset 8   H bytes of FlatBuffers Header (schema/package.fbs)
//	offset 8+H data section holding export payloads
//
// The header carries the export table (named, classed payloads stored in the
// data section, optionally zstd compressed and addressed by OCI digest) and
// the import table (references to objects exported by other packages).
package format
