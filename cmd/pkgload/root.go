package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/decode"
)

// config is the CLI configuration, read from flags, PKGLOAD_* environment
// variables and an optional YAML file.
type config struct {
	ImportPaths   []string `mapstructure:"import_paths"`
	Extensions    []string `mapstructure:"extensions"`
	StrictImports bool     `mapstructure:"strict_imports"`
	FoldCase      bool     `mapstructure:"fold_case"`
	XORKey        string   `mapstructure:"xor_key"`
	Verbose       bool     `mapstructure:"verbose"`
}

// app carries state shared by subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "pkgload",
		Short:        "Inspect, pack and distribute package files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./pkgload.yaml if present)")
	flags.StringSliceP("import-path", "I", nil, "directory searched for imported packages (repeatable)")
	flags.StringSlice("extension", []string{pkgload.DefaultExtension}, "extension tried when locating imports (repeatable)")
	flags.Bool("strict", false, "fail on unresolved imports")
	flags.Bool("fold-case", false, "match package names case-insensitively")
	flags.String("xor-key", "", "hex-encoded XOR key for obfuscated packages")
	flags.BoolP("verbose", "v", false, "log debug output to stderr")

	_ = a.v.BindPFlag("import_paths", flags.Lookup("import-path"))
	_ = a.v.BindPFlag("extensions", flags.Lookup("extension"))
	_ = a.v.BindPFlag("strict_imports", flags.Lookup("strict"))
	_ = a.v.BindPFlag("fold_case", flags.Lookup("fold-case"))
	_ = a.v.BindPFlag("xor_key", flags.Lookup("xor-key"))
	_ = a.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		newInspectCmd(a),
		newDepsCmd(a),
		newPackCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newProfileCmd(a),
	)
	return root
}

// init reads configuration. It runs before every subcommand.
func (a *app) init(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("PKGLOAD")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("pkgload")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	level := slog.LevelWarn
	if a.cfg.Verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// decoder returns the configured XOR decoder, or nil.
func (a *app) decoder() (decode.Decoder, error) {
	if a.cfg.XORKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(a.cfg.XORKey)
	if err != nil {
		return nil, fmt.Errorf("xor key: %w", err)
	}
	return decode.XOR(key), nil
}

// loader builds a Loader from the configuration. Extra options are applied
// last.
func (a *app) loader(extra ...pkgload.Option) (*pkgload.Loader, error) {
	dec, err := a.decoder()
	if err != nil {
		return nil, err
	}
	opts := []pkgload.Option{
		pkgload.WithLogger(a.logger),
		pkgload.WithImportPaths(a.cfg.ImportPaths...),
		pkgload.WithExtensions(a.cfg.Extensions...),
		pkgload.WithStrictImports(a.cfg.StrictImports),
		pkgload.WithFoldCase(a.cfg.FoldCase),
	}
	if dec != nil {
		opts = append(opts, pkgload.WithDecoder(dec))
	}
	return pkgload.New(append(opts, extra...)...), nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // package files are not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
