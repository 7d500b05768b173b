package format

import (
	"encoding/binary"
	"fmt"
	"math"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/pkgload/internal/fb"
)

// ExportSpec describes an export to encode.
type ExportSpec struct {
	Name        string
	Class       string
	Data        []byte
	Compression Compression
}

// Spec describes a package to encode.
type Spec struct {
	Name    string
	Flags   uint32
	Exports []ExportSpec
	Imports []Import
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeConfig)

type encodeConfig struct {
	level      zstd.EncoderLevel
	skipDigest bool
}

// WithEncoderLevel sets the zstd level used for compressed exports.
func WithEncoderLevel(level zstd.EncoderLevel) EncodeOption {
	return func(c *encodeConfig) {
		c.level = level
	}
}

// WithoutDigests omits export digests from the header.
func WithoutDigests() EncodeOption {
	return func(c *encodeConfig) {
		c.skipDigest = true
	}
}

// Encode serializes spec into a package file.
//
// Export payloads are laid out in spec order. Each payload is digested before
// compression, so the recorded digest always addresses the original bytes.
func Encode(spec Spec, opts ...EncodeOption) ([]byte, error) {
	cfg := encodeConfig{level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&cfg)
	}

	var enc *zstd.Encoder
	defer func() {
		if enc != nil {
			_ = enc.Close() //nolint:errcheck // EncodeAll holds no pending state
		}
	}()

	seen := make(map[string]struct{}, len(spec.Exports))
	exports := make([]Export, len(spec.Exports))
	var data []byte
	for i, es := range spec.Exports {
		if es.Name == "" {
			return nil, fmt.Errorf("encode: export %d has no name", i)
		}
		if _, dup := seen[es.Name]; dup {
			return nil, fmt.Errorf("encode: duplicate export %q", es.Name)
		}
		seen[es.Name] = struct{}{}

		payload := es.Data
		switch es.Compression {
		case CompressionNone:
		case CompressionZstd:
			if enc == nil {
				var err error
				enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(cfg.level))
				if err != nil {
					return nil, fmt.Errorf("encode: create zstd encoder: %w", err)
				}
			}
			payload = enc.EncodeAll(es.Data, nil)
		default:
			return nil, fmt.Errorf("encode: export %q: unknown compression %d", es.Name, es.Compression)
		}

		e := Export{
			Name:         es.Name,
			Class:        es.Class,
			Offset:       uint64(len(data)),
			Size:         uint64(len(payload)),
			OriginalSize: uint64(len(es.Data)),
			Compression:  es.Compression,
		}
		if !cfg.skipDigest {
			e.Digest = digest.FromBytes(es.Data)
		}
		exports[i] = e
		data = append(data, payload...)
	}

	header := buildHeader(spec, exports, uint64(len(data)))
	if len(header) > math.MaxUint32 {
		return nil, fmt.Errorf("encode: header is %d bytes", len(header))
	}

	out := make([]byte, 0, PreambleSize+len(header)+len(data))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(header))) //nolint:gosec // checked above
	out = append(out, header...)
	out = append(out, data...)
	return out, nil
}

// buildHeader serializes the header tables to FlatBuffers.
func buildHeader(spec Spec, exports []Export, dataSize uint64) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Children are built back to front, as FlatBuffers requires.
	exportOffsets := make([]flatbuffers.UOffsetT, len(exports))
	for i := len(exports) - 1; i >= 0; i-- {
		e := exports[i]
		nameOffset := builder.CreateString(e.Name)
		classOffset := builder.CreateString(e.Class)
		var digestOffset flatbuffers.UOffsetT
		if e.Digest != "" {
			digestOffset = builder.CreateString(e.Digest.String())
		}

		fb.ExportStart(builder)
		fb.ExportAddName(builder, nameOffset)
		fb.ExportAddClass(builder, classOffset)
		fb.ExportAddOffset(builder, e.Offset)
		fb.ExportAddSize(builder, e.Size)
		fb.ExportAddOriginalSize(builder, e.OriginalSize)
		fb.ExportAddCompression(builder, fb.Compression(e.Compression))
		if digestOffset != 0 {
			fb.ExportAddDigest(builder, digestOffset)
		}
		exportOffsets[i] = fb.ExportEnd(builder)
	}

	importOffsets := make([]flatbuffers.UOffsetT, len(spec.Imports))
	for i := len(spec.Imports) - 1; i >= 0; i-- {
		imp := spec.Imports[i]
		pkgOffset := builder.CreateString(imp.Package)
		nameOffset := builder.CreateString(imp.Name)
		classOffset := builder.CreateString(imp.Class)

		fb.ImportStart(builder)
		fb.ImportAddPackage(builder, pkgOffset)
		fb.ImportAddName(builder, nameOffset)
		fb.ImportAddClass(builder, classOffset)
		importOffsets[i] = fb.ImportEnd(builder)
	}

	fb.HeaderStartExportsVector(builder, len(exportOffsets))
	for i := len(exportOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(exportOffsets[i])
	}
	exportsVector := builder.EndVector(len(exportOffsets))

	fb.HeaderStartImportsVector(builder, len(importOffsets))
	for i := len(importOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(importOffsets[i])
	}
	importsVector := builder.EndVector(len(importOffsets))

	nameOffset := builder.CreateString(spec.Name)

	fb.HeaderStart(builder)
	fb.HeaderAddVersion(builder, Version)
	fb.HeaderAddName(builder, nameOffset)
	fb.HeaderAddFlags(builder, spec.Flags)
	fb.HeaderAddDataSize(builder, dataSize)
	fb.HeaderAddExports(builder, exportsVector)
	fb.HeaderAddImports(builder, importsVector)
	fb.FinishHeaderBuffer(builder, fb.HeaderEnd(builder))
	return builder.FinishedBytes()
}
