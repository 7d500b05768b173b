// Command pkgload inspects, packs, distributes and profiles package files.
package main

import (
	"fmt"
	"os"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := newRootCmd()
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
