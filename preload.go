package pkgload

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"
)

// Preload loads paths into the general cache using a bounded worker pool.
//
// Paths already cached are skipped without I/O. Errors from individual
// paths are joined; a failed path does not stop the others. Cancelling ctx
// stops paths that have not started yet.
func (l *Loader) Preload(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	workers := l.preloadWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(paths))

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for _, path := range paths {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := l.LoadCachedPackage(path)
			return err
		})
	}
	return p.Wait()
}
