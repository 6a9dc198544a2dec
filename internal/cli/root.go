// Package cli provides the steelsched command-line interface. Commands run
// the extraction pipeline in-process against local files, with in-memory job
// state and a directory-backed blob store.
package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/steelsched/internal/config"
)

// Version is set at build time.
var Version = "1.0.0"

type rootOptions struct {
	verbose bool
	mode    string
}

// NewRootCommand builds the steelsched command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "steelsched",
		Short: "Extract fire-protection schedules from structural steel documents",
		Long: `steelsched reads loading and fire-protection schedules (PDF, text,
CSV, TSV or XLSX) and extracts structural member rows with fire ratings,
coating products and dry film thicknesses.

Configuration for the extraction backend and OCR is read from the same
environment variables as the server (AI_PROVIDER, OCR_ENABLED, ...).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline steps to stderr")
	cmd.PersistentFlags().StringVarP(&opts.mode, "mode", "m", "auto", "page mode: auto, text_only, ocr_only or hybrid")

	cmd.AddCommand(
		newParseCommand(opts),
		newPagesCommand(opts),
		newScheduleCommand(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the local configuration and builds the logger commands use.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadLocal()
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
