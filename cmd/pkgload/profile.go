package main

import (
	"context"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/cobra"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/format"
)

type profileConfig struct {
	mode        string
	packages    int
	exports     int
	exportSize  int
	fanout      int
	compression string
	pattern     string
	duration    time.Duration
	iterations  int
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	fgProfile   string
	workers     int
	readRandom  bool
	tempDir     string
	keepTemp    bool
	randomSeed  int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkPackage *pkgload.Package
	sinkCount   int
)

func newProfileCmd(a *app) *cobra.Command {
	var cfg profileConfig
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Generate a synthetic package set and profile loading it",
		Long: `Generate a synthetic package set and profile loading it.

Modes:
  cached   LoadCachedPackage against a warm general cache
  cold     a fresh loader per iteration loading every package header
  full     LoadFullPackage of a random package against a warm import cache
  imports  a fresh loader per iteration fully loading the last package,
           which imports the whole set
  preload  a fresh loader per iteration preloading every package`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProfileCmd(cmd, a, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.mode, "mode", "cached", "mode: cached, cold, full, imports, preload")
	flags.IntVar(&cfg.packages, "packages", 256, "number of packages")
	flags.IntVar(&cfg.exports, "exports", 16, "exports per package")
	flags.IntVar(&cfg.exportSize, "export-size", 4<<10, "export size in bytes")
	flags.IntVar(&cfg.fanout, "fanout", 2, "imports per package")
	flags.StringVar(&cfg.compression, "compression", "zstd", "compression: none or zstd")
	flags.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flags.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flags.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flags.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flags.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flags.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flags.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flags.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flags.IntVar(&cfg.workers, "workers", 0, "preload workers: 0 uses GOMAXPROCS")
	flags.BoolVar(&cfg.readRandom, "read-random", true, "randomize package selection")
	flags.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for the package set")
	flags.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flags.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	return cmd
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func runProfileCmd(cmd *cobra.Command, a *app, cfg profileConfig) error {
	if cfg.packages <= 0 {
		return fmt.Errorf("packages must be positive, got %d", cfg.packages)
	}
	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	paths, err := makePackages(dir, cfg)
	if err != nil {
		return err
	}

	if cfg.fgProfile != "" {
		fgFile, err := os.Create(cfg.fgProfile)
		if err != nil {
			return err
		}
		stopFG := fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, err := os.Create(cfg.cpuProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(cpuFile); err != nil {
			_ = cpuFile.Close()
			return err
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, err := os.Create(cfg.traceFile)
		if err != nil {
			return err
		}
		if err := trace.Start(traceFile); err != nil {
			_ = traceFile.Close()
			return err
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	newLoader := func() (*pkgload.Loader, error) {
		return a.loader(
			pkgload.WithImportPaths(dir),
			pkgload.WithPreloadConcurrency(cfg.workers),
		)
	}
	stats, err := runProfile(cmd.Context(), cfg, newLoader, paths)
	if err != nil {
		return err
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			return err
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			_ = f.Close()
			return err
		}
		_ = f.Close()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "mode=%s ops=%d packages=%d elapsed=%s rate=%.2f packages/s\n",
		cfg.mode,
		stats.ops,
		stats.packages,
		stats.elapsed,
		float64(stats.packages)/stats.elapsed.Seconds(),
	)
	return nil
}

type profileStats struct {
	ops      int
	packages int
	elapsed  time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch
func runProfile(ctx context.Context, cfg profileConfig, newLoader func() (*pkgload.Loader, error), paths []string) (profileStats, error) {
	start := time.Now()
	ops := 0
	loaded := 0

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks

	switch cfg.mode {
	case "cached":
		l, err := newLoader()
		if err != nil {
			return profileStats{}, err
		}
		if err := l.Preload(ctx, paths...); err != nil {
			return profileStats{}, err
		}
		start = time.Now()
		for shouldContinue() {
			p, err := l.LoadCachedPackage(pickPath(paths, ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkPackage = p
			loaded++
			ops++
		}

	case "cold":
		for shouldContinue() {
			l, err := newLoader()
			if err != nil {
				return profileStats{}, err
			}
			for _, path := range paths {
				p, err := l.LoadCachedPackage(path)
				if err != nil {
					return profileStats{}, err
				}
				sinkPackage = p
			}
			loaded += len(paths)
			ops++
		}

	case "full":
		l, err := newLoader()
		if err != nil {
			return profileStats{}, err
		}
		for shouldContinue() {
			p, err := l.LoadFullPackage(pickPath(paths, ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkPackage = p
			loaded++
			ops++
		}

	case "imports":
		last := paths[len(paths)-1]
		for shouldContinue() {
			l, err := newLoader()
			if err != nil {
				return profileStats{}, err
			}
			p, err := l.LoadFullPackage(last)
			if err != nil {
				return profileStats{}, err
			}
			sinkPackage = p
			sinkCount = l.ImportedPackages().Len()
			loaded += 1 + sinkCount
			ops++
		}

	case "preload":
		for shouldContinue() {
			l, err := newLoader()
			if err != nil {
				return profileStats{}, err
			}
			if err := l.Preload(ctx, paths...); err != nil {
				return profileStats{}, err
			}
			sinkCount = l.CachedPackages().Len()
			loaded += sinkCount
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:      ops,
		packages: loaded,
		elapsed:  time.Since(start),
	}, nil
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.Intn(len(paths))]
	}
	return paths[idx%len(paths)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg profileConfig) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "pkgload-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// makePackages writes cfg.packages packages to dir. Package i imports the
// first export of up to cfg.fanout earlier packages, so the last package
// reaches most of the set.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makePackages(dir string, cfg profileConfig) ([]string, error) {
	compression, err := parseCompression(cfg.compression)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks

	paths := make([]string, 0, cfg.packages)
	for i := range cfg.packages {
		name := packageName(i)
		spec := format.Spec{Name: name}
		for j := range cfg.exports {
			content := make([]byte, cfg.exportSize)
			switch cfg.pattern {
			case "random":
				if _, err := rng.Read(content); err != nil {
					return nil, err
				}
			default:
				fillByte := byte('a' + ((i + j) % 26))
				for k := range content {
					content[k] = fillByte
				}
				if len(content) > 0 {
					content[0] = byte(j)
				}
			}
			spec.Exports = append(spec.Exports, format.ExportSpec{
				Name:        fmt.Sprintf("obj%04d", j),
				Class:       "Object",
				Data:        content,
				Compression: compression,
			})
		}
		seen := make(map[int]bool, cfg.fanout)
		for k := 1; k <= cfg.fanout && i-k >= 0 && cfg.exports > 0; k++ {
			dep := i - k
			if k > 1 {
				dep = i / k
			}
			if dep == i || seen[dep] {
				continue
			}
			seen[dep] = true
			spec.Imports = append(spec.Imports, format.Import{
				Package: packageName(dep),
				Name:    "obj0000",
				Class:   "Object",
			})
		}

		data, err := format.Encode(spec)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name+pkgload.DefaultExtension)
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func packageName(i int) string {
	return fmt.Sprintf("pkg%05d", i)
}

func parseCompression(name string) (format.Compression, error) {
	switch name {
	case "none":
		return format.CompressionNone, nil
	case "zstd":
		return format.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %s", name)
	}
}
