// Package pkgload loads binary packages and deduplicates them by name.
//
// A [Loader] turns a path or an in-memory buffer into a [Package] and keeps
// two registries of the packages it produced:
//
//   - the general cache, filled by [Loader.LoadCachedPackage], holding
//     packages as loaded (usually header-parsed)
//   - the import cache, filled by [Loader.LoadImportPackage] and by import
//     resolution, holding only initialized packages
//
// Both registries are keyed by the package path's base name without
// extension (see [Key]), so "/a/Core.upk" and "/b/Core.upk" share an entry.
// A hit returns the stored package unchanged; nothing is re-read or
// re-parsed. Registries never evict.
//
// # Lifecycle
//
// A package is created unloaded, becomes header-parsed once its header
// tables are read, and initialized once its exports are read and its
// imports linked:
//
//	l := pkgload.New(pkgload.WithImportPaths("./content"))
//	p, err := l.LoadCachedPackage("./content/Engine.upk") // header parsed
//	if err != nil {
//	    return err
//	}
//	err = l.InitializePackage(p) // initialized
//
// [Loader.LoadFullPackage] does both steps and bypasses the caches for the
// package itself.
//
// # Decoders
//
// Packages stored obfuscated or encrypted are read through a
// [decode.Decoder], attached per call with [Loader.LoadPackageFile] or as a
// default with [WithDecoder].
//
// # Concurrency
//
// A Loader is safe for concurrent use. Concurrent misses on one key perform
// a single load and all callers receive the same package.
package pkgload
