package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meigma/pkgload"
)

func newDepsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <file>",
		Short: "Fully load a package and print how its imports resolved",
		Long: `Fully load a package, resolving its imports from the import paths,
then print each import's target and the order packages were loaded in.

Without --import-path the package's own directory is searched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []pkgload.Option
			if len(a.cfg.ImportPaths) == 0 {
				extra = append(extra, pkgload.WithImportPaths(filepath.Dir(args[0])))
			}
			l, err := a.loader(extra...)
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck // Close only clears registries

			p, err := l.LoadFullPackage(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "IMPORT\tCLASS\tRESOLVED\n")
			for _, link := range p.Imports() {
				status := "unresolved"
				if link.Object != nil {
					status = link.Object.Package.Path()
				}
				fmt.Fprintf(tw, "%s.%s\t%s\t%s\n", link.Package, link.Name, link.Class, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			order, err := l.ImportOrder()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "\nload order:")
			for i, name := range order {
				fmt.Fprintf(w, "  %d. %s\n", i+1, name)
			}
			return nil
		},
	}
}
