package pkgload

import "strings"

// Key derives the cache key for a package path: the base file name without
// its final extension.
//
// Both '/' and '\' are treated as directory separators so paths taken from
// archives built on other platforms key the same way. Paths in different
// directories with the same base name share a key.
func Key(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[:i]
	}
	return path
}
