package pkgload

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/meigma/pkgload/decode"
	"github.com/meigma/pkgload/internal/decompress"
	"github.com/meigma/pkgload/internal/stream"
	"github.com/meigma/pkgload/registry"
)

const (
	// DefaultMaxPackageSize is the default package and export size limit (256MB).
	DefaultMaxPackageSize = 256 << 20

	// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256MB).
	DefaultMaxDecoderMemory = 256 << 20

	// DefaultExtension is the package file extension tried when locating imports.
	DefaultExtension = ".upk"
)

// FileReader reads a package file into memory.
//
// Errors should wrap fs.ErrNotExist when the path does not exist; import
// resolution relies on it to move on to the next candidate path.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// FileReaderFunc adapts a function to the FileReader interface.
type FileReaderFunc func(path string) ([]byte, error)

// ReadFile calls f(path).
func (f FileReaderFunc) ReadFile(path string) ([]byte, error) {
	return f(path)
}

// Loader loads packages and keeps two registries of them: the general
// cache, filled by LoadCachedPackage, and the import cache, filled with
// initialized packages by LoadImportPackage and by import resolution.
//
// A Loader is a session: its registries live as long as it does, or until
// cleared through Close or the registry handles. A Loader is safe for
// concurrent use; concurrent requests for the same key load once.
type Loader struct {
	cached   *registry.Registry[*Package]
	imported *registry.Registry[*Package]

	reader           FileReader
	decoder          decode.Decoder
	importPaths      []string
	extensions       []string
	strictImports    bool
	foldCase         bool
	maxPackageSize   uint64
	maxDecoderMemory uint64
	preloadWorkers   int
	progress         ProgressFunc
	logger           *slog.Logger

	pool *decompress.Pool

	// deps records package -> imported package edges for every package
	// initialized by this loader. Edges point from the import to the
	// importer.
	depsMu sync.Mutex
	deps   graph.Graph[string, string]
}

// New creates a Loader with empty registries.
func New(opts ...Option) *Loader {
	l := &Loader{
		reader:           FileReaderFunc(os.ReadFile),
		extensions:       []string{DefaultExtension},
		maxPackageSize:   DefaultMaxPackageSize,
		maxDecoderMemory: DefaultMaxDecoderMemory,
		deps:             graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pool = decompress.New(l.maxDecoderMemory)
	l.cached = registry.New[*Package]()
	l.imported = registry.New(registry.WithAdmission(func(key string, p *Package) error {
		if p == nil {
			return fmt.Errorf("%w: nil package for %s", ErrNotInitialized, key)
		}
		if stage := p.Stage(); stage != StageInitialized {
			return fmt.Errorf("%w: %s is %s", ErrNotInitialized, key, stage)
		}
		return nil
	}))
	return l
}

// log returns the logger, falling back to a discard logger if nil.
func (l *Loader) log() *slog.Logger {
	if l.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.logger
}

// key derives the registry key for a path.
func (l *Loader) key(path string) string {
	return l.normalize(Key(path))
}

// normalize applies the loader's case rule to a package name.
func (l *Loader) normalize(name string) string {
	if l.foldCase {
		return strings.ToLower(name)
	}
	return name
}

// LoadPackage parses data as a package named name and returns it with its
// header read. It never touches a registry.
func (l *Loader) LoadPackage(name string, data []byte) (*Package, error) {
	return l.loadBuffer(name, data, nil)
}

// LoadPackageFile reads the package at path and returns it with its header
// read. dec is attached to the package before parsing; nil selects the
// loader's default decoder. It never touches a registry.
func (l *Loader) LoadPackageFile(path string, dec decode.Decoder) (*Package, error) {
	data, err := l.read(path)
	if err != nil {
		return nil, err
	}
	if dec == nil {
		dec = l.decoder
	}
	return l.loadBuffer(path, data, dec)
}

// LoadCachedPackage returns the general-cache package for path's key,
// reading and parsing path only on a miss.
func (l *Loader) LoadCachedPackage(path string) (*Package, error) {
	return l.loadCached(path, func() (*Package, error) {
		return l.LoadPackageFile(path, nil)
	})
}

// LoadCachedPackageBytes is LoadCachedPackage for callers that already hold
// the package bytes. On a hit data is ignored, even if it differs from the
// bytes the cached package was built from.
func (l *Loader) LoadCachedPackageBytes(path string, data []byte) (*Package, error) {
	return l.loadCached(path, func() (*Package, error) {
		return l.LoadPackage(path, data)
	})
}

// LoadImportPackage returns the import-cache package for path's key. On a
// miss data is parsed and the package initialized before it is stored, so
// every package returned is initialized, and initialized once.
func (l *Loader) LoadImportPackage(path string, data []byte) (*Package, error) {
	return l.loadImport(l.key(path), path, func() (*Package, error) {
		return l.LoadPackage(path, data)
	})
}

// LoadFullPackage reads, parses and initializes the package at path. It
// neither consults nor fills the registries for the package itself, so
// every call returns a fresh package. Packages it imports are resolved
// through the import cache.
func (l *Loader) LoadFullPackage(path string) (*Package, error) {
	p, err := l.LoadPackageFile(path, nil)
	if err != nil {
		return nil, err
	}
	if err := l.initialize(p); err != nil {
		return nil, err
	}
	return p, nil
}

// InitializePackage reads the exports of a header-parsed package and links
// its imports. Packages from LoadPackage and LoadCachedPackage are returned
// header-parsed; this is the step that completes them.
func (l *Loader) InitializePackage(p *Package) error {
	return l.initialize(p)
}

// GetFromCache looks up the general cache by the key of name. It never
// loads.
func (l *Loader) GetFromCache(name string) (*Package, bool) {
	return l.cached.Get(l.key(name))
}

// CachedPackages returns the live general cache.
func (l *Loader) CachedPackages() *registry.Registry[*Package] {
	return l.cached
}

// ImportedPackages returns the live import cache. Changes made through it
// are seen by the loader and by later calls; use Values for a snapshot.
func (l *Loader) ImportedPackages() *registry.Registry[*Package] {
	return l.imported
}

// Close clears both registries.
func (l *Loader) Close() error {
	l.cached.Clear()
	l.imported.Clear()
	return nil
}

func (l *Loader) read(path string) ([]byte, error) {
	l.emit(StageReading, l.key(path), path)
	data, err := l.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", path, err)
	}
	return data, nil
}

// loadBuffer binds data to a new package and reads its header.
func (l *Loader) loadBuffer(name string, data []byte, dec decode.Decoder) (*Package, error) {
	if l.maxPackageSize > 0 && uint64(len(data)) > l.maxPackageSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrPackageTooLarge, name, len(data), l.maxPackageSize)
	}

	p := newPackage(stream.New(name, data, dec))
	l.emit(StageParsing, p.Name(), name)
	if err := p.deserialize(); err != nil {
		return nil, err
	}

	h := p.Header()
	l.log().Debug("package parsed",
		"name", p.Name(),
		"path", name,
		"size", len(data),
		"exports", len(h.Exports),
		"imports", len(h.Imports),
	)
	return p, nil
}

func (l *Loader) loadCached(path string, load func() (*Package, error)) (*Package, error) {
	key := l.key(path)
	p, cached, err := l.cached.LoadOrStore(key, load)
	if err != nil {
		return nil, err
	}
	if cached {
		l.emit(StageCacheHit, key, path)
		l.log().Debug("package cache hit", "key", key, "path", path)
	} else {
		l.log().Debug("package cached", "key", key, "path", path)
	}
	return p, nil
}

func (l *Loader) loadImport(key, path string, load func() (*Package, error)) (*Package, error) {
	p, cached, err := l.imported.LoadOrStore(key, func() (*Package, error) {
		p, err := load()
		if err != nil {
			return nil, err
		}
		if err := l.initialize(p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if cached {
		l.emit(StageCacheHit, key, path)
		l.log().Debug("import cache hit", "key", key, "path", path)
	} else {
		l.log().Debug("package imported", "key", key, "path", path)
	}
	return p, nil
}
