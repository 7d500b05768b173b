package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meigma/pkgload/oci"
)

func newPushCmd(_ *app) *cobra.Command {
	var plainHTTP bool
	cmd := &cobra.Command{
		Use:   "push <repository:tag> <file>...",
		Short: "Push package files to an OCI registry as one artifact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := oci.NewRepository(args[0], plainHTTP)
			if err != nil {
				return err
			}

			tag := repo.Reference.Reference
			if tag == "" {
				return fmt.Errorf("%s: reference has no tag", args[0])
			}

			files := make([]oci.File, 0, len(args)-1)
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, oci.File{Name: filepath.Base(path), Data: data})
			}

			desc, err := oci.Push(cmd.Context(), repo, tag, files)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d packages: %s@%s\n", len(files), repo.Reference.Repository, desc.Digest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plainHTTP, "plain-http", false, "use HTTP instead of HTTPS")
	return cmd
}

func newPullCmd(_ *app) *cobra.Command {
	var plainHTTP bool
	cmd := &cobra.Command{
		Use:   "pull <repository:tag> <dir>",
		Short: "Pull a package set from an OCI registry into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := oci.NewRepository(args[0], plainHTTP)
			if err != nil {
				return err
			}
			if repo.Reference.Reference == "" {
				return fmt.Errorf("%s: reference has no tag or digest", args[0])
			}
			archive, err := oci.Pull(cmd.Context(), repo, repo.Reference.Reference)
			if err != nil {
				return err
			}

			dir := args[1]
			if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // output directory is user-chosen
				return err
			}
			for _, name := range archive.Names() {
				data, err := archive.ReadFile(name)
				if err != nil {
					return err
				}
				base := filepath.Base(name)
				if base == "." || base == ".." || base == string(filepath.Separator) {
					return fmt.Errorf("refusing to write layer titled %q", name)
				}
				if err := writeFile(filepath.Join(dir, base), data); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d packages into %s\n", len(archive.Names()), dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plainHTTP, "plain-http", false, "use HTTP instead of HTTPS")
	return cmd
}
