package pkgload

import (
	"log/slog"

	"github.com/meigma/pkgload/decode"
)

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger for load and cache events.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithFileReader sets how package paths are read. The default reads from
// the local filesystem with os.ReadFile.
func WithFileReader(r FileReader) Option {
	return func(l *Loader) {
		if r != nil {
			l.reader = r
		}
	}
}

// WithDecoder sets the decoder attached to packages read from paths when
// the caller does not supply one.
func WithDecoder(dec decode.Decoder) Option {
	return func(l *Loader) {
		l.decoder = dec
	}
}

// WithImportPaths sets the directories searched for imported packages,
// in order.
func WithImportPaths(dirs ...string) Option {
	return func(l *Loader) {
		l.importPaths = append([]string(nil), dirs...)
	}
}

// WithExtensions sets the file extensions tried, in order, when locating an
// imported package. Defaults to ".upk".
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		if len(exts) > 0 {
			l.extensions = append([]string(nil), exts...)
		}
	}
}

// WithStrictImports makes unresolved imports fail initialization with
// ErrUnresolvedImport. By default they are logged and left unlinked.
func WithStrictImports(strict bool) Option {
	return func(l *Loader) {
		l.strictImports = strict
	}
}

// WithFoldCase makes cache keys case-insensitive. By default keys match
// exactly.
func WithFoldCase(fold bool) Option {
	return func(l *Loader) {
		l.foldCase = fold
	}
}

// WithMaxPackageSize limits the size of a package file and of any single
// inflated export. Set limit to 0 to disable the limit.
func WithMaxPackageSize(limit uint64) Option {
	return func(l *Loader) {
		l.maxPackageSize = limit
	}
}

// WithMaxDecoderMemory limits the memory used by each zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(l *Loader) {
		l.maxDecoderMemory = limit
	}
}

// WithPreloadConcurrency sets the number of workers Preload uses.
// Values <= 0 use GOMAXPROCS.
func WithPreloadConcurrency(n int) Option {
	return func(l *Loader) {
		l.preloadWorkers = n
	}
}

// WithProgress sets a callback for loader steps.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loader) {
		l.progress = fn
	}
}
