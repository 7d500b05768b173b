package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/format"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print a package's header tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.loader()
			if err != nil {
				return err
			}
			p, err := l.LoadPackageFile(args[0], nil)
			if err != nil {
				return err
			}
			return printHeader(cmd.OutOrStdout(), p)
		},
	}
}

func printHeader(w io.Writer, p *pkgload.Package) error {
	h := p.Header()
	fmt.Fprintf(w, "package: %s\n", p.Name())
	fmt.Fprintf(w, "header name: %s\n", h.Name)
	fmt.Fprintf(w, "version: %d\n", h.Version)
	fmt.Fprintf(w, "flags: %#x\n", h.Flags)
	fmt.Fprintf(w, "size: %d (data %d at %d)\n", p.Size(), h.DataSize, h.DataOffset)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\nEXPORT\tCLASS\tSIZE\tORIGINAL\tCOMPRESSION\tDIGEST\n")
	for _, e := range h.Exports {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", e.Name, e.Class, e.Size, e.OriginalSize, e.Compression, digestOrDash(e))
	}
	fmt.Fprintf(tw, "\nIMPORT\tCLASS\tPACKAGE\n")
	for _, imp := range h.Imports {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", imp.Name, imp.Class, imp.Package)
	}
	return tw.Flush()
}

func digestOrDash(e format.Export) string {
	if e.Digest == "" {
		return "-"
	}
	return e.Digest.String()
}
