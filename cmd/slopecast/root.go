package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/bootstrap"
)

// app carries state shared by every subcommand.
type app struct {
	logger *slog.Logger
	cfg    config.AppConfig
	load   func() (config.AppConfig, error)
}

func newApp(logger *slog.Logger) *app {
	if logger == nil {
		logger = slog.Default()
	}
	return &app{logger: logger, load: config.Load}
}

func (a *app) loadConfig() error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	a.logger = bootstrap.ConfigureLogger(cfg, a.logger)
	a.cfg = cfg
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "slopecast",
		Short:         "Ski resort weather ingestion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.loadConfig()
		},
	}
	root.AddCommand(
		newServeCmd(a),
		newFetchCmd(a),
		newBackfillCmd(a),
		newStatusCmd(a),
		newMigrateCmd(a),
		newLocationsCmd(a),
		newSettingsCmd(a),
		newReapCmd(a),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
