// Package cli implements datalakectl, the operator command line of the
// data lake. Commands work in-process against the configured database and
// connections; no API server needs to be running.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xelth-com/datalake/internal/app"
	"github.com/xelth-com/datalake/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Connection string // empty selects every connection

	// Open builds the data lake; replaced in tests
	Open Opener
}

// Opener assembles the data lake, logging to logOut
type Opener func(ctx context.Context, logOut io.Writer, verbose bool) (*app.App, error)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command with the default opener
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(OpenFromEnv)
}

// NewRootCommandWith creates the root command around open
func NewRootCommandWith(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "datalakectl",
		Short: "datalakectl - TMS data lake operations",
		Long:  "Inspect and drive the TMS data lake: trigger sync tiers, read sync stats and data freshness.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Connection, "connection", "c", "", "connection id (default: all)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewFreshnessCommand(opts))
	cmd.AddCommand(NewConnectionsCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// OpenFromEnv loads .env, the environment and the sync config file, then
// assembles the data lake
func OpenFromEnv(ctx context.Context, logOut io.Writer, verbose bool) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	syncCfg, err := config.LoadSyncConfig()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	logger.SetOutput(logOut)
	if !verbose && logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}

	return app.New(cfg, syncCfg, logger)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
