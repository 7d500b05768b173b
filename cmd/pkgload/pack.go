package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/format"
)

type packOptions struct {
	name     string
	output   string
	class    string
	compress bool
	imports  []string
}

func newPackCmd(a *app) *cobra.Command {
	var opts packOptions
	cmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Build a package from the files in a directory",
		Long: `Build a package with one export per regular file in dir. Exports are
named after the file without its extension.

Imports are given as Package.Object or Package.Object:Class. When an XOR key
is configured the output is obfuscated with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := pack(args[0], opts)
			if err != nil {
				return err
			}
			dec, err := a.decoder()
			if err != nil {
				return err
			}
			if dec != nil {
				dec.DecodeRegion(0, data)
			}
			if err := writeFile(opts.output, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", opts.output, len(data))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.name, "name", "n", "", "package name (default: output file name)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file")
	flags.StringVar(&opts.class, "class", "Object", "class of every export")
	flags.BoolVar(&opts.compress, "compress", true, "zstd-compress exports")
	flags.StringArrayVar(&opts.imports, "import", nil, "import as Package.Object[:Class] (repeatable)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func pack(dir string, opts packOptions) ([]byte, error) {
	spec := format.Spec{Name: opts.name}
	if spec.Name == "" {
		spec.Name = pkgload.Key(opts.output)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	compression := format.CompressionNone
	if opts.compress {
		compression = format.CompressionZstd
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		spec.Exports = append(spec.Exports, format.ExportSpec{
			Name:        pkgload.Key(entry.Name()),
			Class:       opts.class,
			Data:        data,
			Compression: compression,
		})
	}

	for _, ref := range opts.imports {
		imp, err := parseImport(ref)
		if err != nil {
			return nil, err
		}
		spec.Imports = append(spec.Imports, imp)
	}
	return format.Encode(spec)
}

// parseImport parses Package.Object[:Class].
func parseImport(ref string) (format.Import, error) {
	ref, class, _ := strings.Cut(ref, ":")
	pkg, name, ok := strings.Cut(ref, ".")
	if !ok || pkg == "" || name == "" {
		return format.Import{}, fmt.Errorf("bad import %q: want Package.Object[:Class]", ref)
	}
	return format.Import{Package: pkg, Name: name, Class: class}, nil
}
