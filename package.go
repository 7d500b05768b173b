package pkgload

import (
	"fmt"
	"sync"

	"github.com/meigma/pkgload/decode"
	"github.com/meigma/pkgload/format"
	"github.com/meigma/pkgload/internal/stream"
)

// Stage is the lifecycle state of a Package.
type Stage uint8

const (
	// StageUnloaded is the state of a package bound to a stream whose header
	// has not been read.
	StageUnloaded Stage = iota

	// StageHeaderParsed means the header tables were read; no exports have
	// been read and no imports linked.
	StageHeaderParsed

	// StageInitialized means every export was read and every import linked.
	StageInitialized
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageUnloaded:
		return "unloaded"
	case StageHeaderParsed:
		return "header parsed"
	case StageInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Object is an export read from a package's data section.
type Object struct {
	Name  string
	Class string

	// Data is the decoded payload. It must be treated as immutable.
	Data []byte

	// Package is the package that exports the object.
	Package *Package
}

// Link is an import table row together with the object it resolved to.
type Link struct {
	format.Import

	// Object is the resolved export, or nil when the import could not be
	// resolved and the loader is not strict.
	Object *Object
}

// Package is the in-memory representation of one package file.
//
// A Package moves through StageUnloaded, StageHeaderParsed and
// StageInitialized. Registries hand out shared references; callers must not
// modify the slices a Package returns.
type Package struct {
	name   string
	stream *stream.Stream

	// initMu serializes initialization.
	initMu sync.Mutex

	mu      sync.RWMutex
	stage   Stage
	header  *format.Header
	exports []*Object
	byName  map[string]*Object
	links   []Link
}

func newPackage(s *stream.Stream) *Package {
	return &Package{
		name:   Key(s.Name()),
		stream: s,
	}
}

// Name returns the package name: the base name of the path or stream name
// it was loaded from, without extension.
func (p *Package) Name() string {
	return p.name
}

// Path returns the path or stream name the package was loaded from.
func (p *Package) Path() string {
	return p.stream.Name()
}

// Size returns the size of the package file in bytes.
func (p *Package) Size() int64 {
	return p.stream.Size()
}

// Decoder returns the decoder attached to the package's stream, or nil.
func (p *Package) Decoder() decode.Decoder {
	return p.stream.Decoder()
}

// Stage returns the current lifecycle stage.
func (p *Package) Stage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// Header returns the parsed header, or nil while the package is unloaded.
func (p *Package) Header() *format.Header {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.header
}

// Exports returns the package's objects in export table order.
// It is empty until the package is initialized.
func (p *Package) Exports() []*Object {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exports
}

// Export returns the exported object with the given name.
// It reports false until the package is initialized.
func (p *Package) Export(name string) (*Object, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	obj, ok := p.byName[name]
	return obj, ok
}

// Imports returns the linked import table in header order.
// It is empty until the package is initialized.
func (p *Package) Imports() []Link {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.links
}

// String implements fmt.Stringer.
func (p *Package) String() string {
	return fmt.Sprintf("%s (%s)", p.name, p.Stage())
}

// deserialize reads the header tables from the bound stream.
func (p *Package) deserialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stage != StageUnloaded {
		return nil
	}
	h, err := format.Parse(p.stream)
	if err != nil {
		return fmt.Errorf("parse %s: %w", p.stream.Name(), err)
	}
	p.header = h
	p.stage = StageHeaderParsed
	return nil
}

// readExports reads and verifies every export payload.
func (p *Package) readExports(l *Loader) ([]*Object, error) {
	h := p.Header()
	objects := make([]*Object, len(h.Exports))
	for i := range h.Exports {
		e := &h.Exports[i]
		data, err := format.ReadPayload(p.stream, h, e, l.pool, l.maxPackageSize)
		if err != nil {
			return nil, fmt.Errorf("initialize %s: %w", p.name, err)
		}
		objects[i] = &Object{Name: e.Name, Class: e.Class, Data: data, Package: p}
	}
	return objects, nil
}

// finishInitialize publishes the linked object graph.
func (p *Package) finishInitialize(objects []*Object, byName map[string]*Object, links []Link) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exports = objects
	p.byName = byName
	p.links = links
	p.stage = StageInitialized
}
