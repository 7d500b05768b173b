// Package testutil provides package fixtures and in-memory readers for tests.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meigma/pkgload/format"
)

// BuildPackage encodes spec, failing the test on error.
func BuildPackage(tb testing.TB, spec format.Spec) []byte {
	tb.Helper()
	data, err := format.Encode(spec)
	if err != nil {
		tb.Fatalf("encode package %s: %v", spec.Name, err)
	}
	return data
}

// WritePackage encodes spec to dir/file and returns the full path.
func WritePackage(tb testing.TB, dir, file string, spec format.Spec) string {
	tb.Helper()
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, BuildPackage(tb, spec), 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// SimpleSpec returns a package spec with one uncompressed export per name.
// Each export's payload is "<package>.<export>".
func SimpleSpec(name string, exports ...string) format.Spec {
	spec := format.Spec{Name: name}
	for _, e := range exports {
		spec.Exports = append(spec.Exports, format.ExportSpec{
			Name:  e,
			Class: "Object",
			Data:  []byte(name + "." + e),
		})
	}
	return spec
}

// MockFS is a concurrency-safe in-memory file reader that counts reads.
type MockFS struct {
	mu    sync.Mutex
	files map[string][]byte
	reads map[string]int
}

// NewMockFS returns an empty MockFS.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string][]byte),
		reads: make(map[string]int),
	}
}

// Add stores data at path.
func (m *MockFS) Add(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
}

// AddPackage encodes spec and stores it at path.
func (m *MockFS) AddPackage(tb testing.TB, path string, spec format.Spec) {
	tb.Helper()
	m.Add(path, BuildPackage(tb, spec))
}

// ReadFile returns the bytes stored at path. Missing paths fail with a
// *fs.PathError wrapping fs.ErrNotExist. Every call is counted, including
// failed ones.
func (m *MockFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[path]++
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return data, nil
}

// Reads returns how many times path was read.
func (m *MockFS) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[path]
}

// TotalReads returns the number of reads across all paths.
func (m *MockFS) TotalReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, c := range m.reads {
		n += c
	}
	return n
}
