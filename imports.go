package pkgload

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"
)

// initialize reads p's exports, links its imports and marks it initialized.
func (l *Loader) initialize(p *Package) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()

	switch p.Stage() {
	case StageUnloaded:
		return fmt.Errorf("%w: %s", ErrNotParsed, p.Name())
	case StageInitialized:
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, p.Name())
	}

	l.emit(StageInitializing, p.Name(), p.Path())
	objects, err := p.readExports(l)
	if err != nil {
		return err
	}
	byName := make(map[string]*Object, len(objects))
	for _, obj := range objects {
		byName[obj.Name] = obj
	}

	h := p.Header()
	self := l.normalize(p.Name())
	targets := make(map[string]*Package)
	links := make([]Link, len(h.Imports))
	for i, imp := range h.Imports {
		links[i].Import = imp

		pkgKey := l.normalize(imp.Package)
		if pkgKey == self {
			obj, err := l.matchObject(byName[imp.Name], p.Name(), imp.Name, imp.Class)
			if err != nil {
				return fmt.Errorf("initialize %s: %w", p.Name(), err)
			}
			links[i].Object = obj
			continue
		}

		target, seen := targets[pkgKey]
		if !seen {
			target, err = l.resolveImport(self, imp.Package)
			if err != nil {
				return fmt.Errorf("initialize %s: %w", p.Name(), err)
			}
			targets[pkgKey] = target
		}
		if target == nil {
			continue
		}

		exported, _ := target.Export(imp.Name)
		obj, err := l.matchObject(exported, target.Name(), imp.Name, imp.Class)
		if err != nil {
			return fmt.Errorf("initialize %s: %w", p.Name(), err)
		}
		links[i].Object = obj
	}

	p.finishInitialize(objects, byName, links)
	l.log().Debug("package initialized",
		"name", p.Name(),
		"objects", len(objects),
		"links", len(links),
	)
	return nil
}

// matchObject checks a looked-up export against an import row. A nil result
// with a nil error means the import is left unlinked.
func (l *Loader) matchObject(obj *Object, pkg, name, class string) (*Object, error) {
	if obj != nil && (class == "" || obj.Class == class) {
		return obj, nil
	}
	var err error
	if obj == nil {
		err = fmt.Errorf("%w: %s.%s is not exported", ErrUnresolvedImport, pkg, name)
	} else {
		err = fmt.Errorf("%w: %s.%s is %s, want %s", ErrUnresolvedImport, pkg, name, obj.Class, class)
	}
	if l.strictImports {
		return nil, err
	}
	l.log().Warn("import left unlinked", "package", pkg, "object", name, "error", err)
	return nil, nil
}

// resolveImport returns the initialized package importer depends on.
// A nil package with a nil error means it could not be found and the
// loader is not strict.
func (l *Loader) resolveImport(importer, name string) (*Package, error) {
	key := l.normalize(name)
	if err := l.addDependency(importer, key); err != nil {
		return nil, err
	}

	l.emit(StageResolvingImport, key, "")
	p, err := l.loadImport(key, name, func() (*Package, error) {
		path, data, err := l.locate(name)
		if err != nil {
			return nil, err
		}
		return l.loadBuffer(path, data, l.decoder)
	})
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrUnresolvedImport) && !l.strictImports {
		l.log().Warn("imported package not found", "importer", importer, "package", name)
		return nil, nil
	}
	return nil, err
}

// locate finds and reads an imported package from the import paths.
func (l *Loader) locate(name string) (string, []byte, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", nil, fmt.Errorf("%w: invalid package name %q", ErrUnresolvedImport, name)
	}
	for _, dir := range l.importPaths {
		for _, ext := range l.extensions {
			path := filepath.Join(dir, name+ext)
			l.emit(StageReading, l.key(path), path)
			data, err := l.reader.ReadFile(path)
			if err == nil {
				return path, data, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", nil, fmt.Errorf("read package %s: %w", path, err)
			}
		}
	}
	return "", nil, fmt.Errorf("%w: package %s not found on import paths", ErrUnresolvedImport, name)
}

// addDependency records that importer depends on imported. An edge that
// would close a cycle is rejected with ErrImportCycle.
func (l *Loader) addDependency(importer, imported string) error {
	l.depsMu.Lock()
	defer l.depsMu.Unlock()

	for _, v := range []string{importer, imported} {
		if err := l.deps.AddVertex(v); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return err
		}
	}
	err := l.deps.AddEdge(imported, importer)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("%w: %s imports %s", ErrImportCycle, importer, imported)
	default:
		return err
	}
}

// ImportOrder returns every package name seen during import resolution,
// ordered so that each package comes after the packages it imports. Ties
// are broken by name.
func (l *Loader) ImportOrder() ([]string, error) {
	l.depsMu.Lock()
	defer l.depsMu.Unlock()
	return graph.StableTopologicalSort(l.deps, func(a, b string) bool { return a < b })
}

// Dependencies returns the names of the packages name was seen to import.
func (l *Loader) Dependencies(name string) ([]string, error) {
	l.depsMu.Lock()
	defer l.depsMu.Unlock()

	preds, err := l.deps.PredecessorMap()
	if err != nil {
		return nil, err
	}
	edges, ok := preds[l.normalize(name)]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(edges))
	for dep := range edges {
		out = append(out, dep)
	}
	slices.Sort(out)
	return out, nil
}
