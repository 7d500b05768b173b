package pkgload

import (
	"errors"

	"github.com/meigma/pkgload/format"
)

// Errors re-exported from format.
var (
	// ErrFormat is returned when a buffer is not a well-formed package.
	ErrFormat = format.ErrMalformed

	// ErrDigestMismatch is returned when export content does not match its digest.
	ErrDigestMismatch = format.ErrDigestMismatch

	// ErrDecompression is returned when an export payload fails to inflate.
	ErrDecompression = format.ErrDecompression
)

// Sentinel errors specific to the loader.
var (
	// ErrPackageTooLarge is returned when a package exceeds the configured size limit.
	ErrPackageTooLarge = errors.New("pkgload: package too large")

	// ErrNotParsed is returned when initializing a package whose header was never read.
	ErrNotParsed = errors.New("pkgload: package header not parsed")

	// ErrAlreadyInitialized is returned when initializing a package twice.
	ErrAlreadyInitialized = errors.New("pkgload: package already initialized")

	// ErrNotInitialized is returned when a package that has not been
	// initialized is stored in the import cache.
	ErrNotInitialized = errors.New("pkgload: package not initialized")

	// ErrUnresolvedImport is returned in strict mode when an imported package
	// or object cannot be found.
	ErrUnresolvedImport = errors.New("pkgload: unresolved import")

	// ErrImportCycle is returned when package imports form a cycle.
	ErrImportCycle = errors.New("pkgload: import cycle")
)
