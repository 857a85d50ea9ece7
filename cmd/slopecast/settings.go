package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/data"
	"github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/domain/model"
)

type settingsView struct {
	CallsPerMinute float64               `json:"calls_per_minute"`
	IntervalMillis int64                 `json:"interval_ms"`
	Models         []model.ForecastModel `json:"models"`
	RetryAttempts  int                   `json:"retry_max_attempts"`
	RetryBackoff   string                `json:"retry_backoff"`
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and tune runtime settings stored in Redis",
	}
	cmd.AddCommand(newSettingsShowCmd(a), newSettingsSetRateCmd(a), newSettingsSetModelsCmd(a))
	return cmd
}

// withSettings connects Redis and hands the settings store to fn.
func (a *app) withSettings(cmd *cobra.Command, fn func(*data.SettingsRepo) error) error {
	infra, err := a.connect(cmd.Context(), infraNeeds{Redis: true})
	if err != nil {
		return err
	}
	defer a.closeInfra(infra)

	repo, err := a.settingsRepo(infra.Redis)
	if err != nil {
		return err
	}
	return fn(repo)
}

func newSettingsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSettings(cmd, func(repo *data.SettingsRepo) error {
				cpm, err := repo.CallsPerMinute(ctx)
				if err != nil {
					return err
				}
				models, err := repo.Models(ctx)
				if err != nil {
					return err
				}
				retry, err := repo.RetryPolicy(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), settingsView{
					CallsPerMinute: cpm,
					IntervalMillis: job.IntervalFor(cpm).Milliseconds(),
					Models:         models,
					RetryAttempts:  retry.MaxAttempts,
					RetryBackoff:   retry.BackoffBase.String(),
				})
			})
		},
	}
}

func newSettingsSetRateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <calls-per-minute>",
		Short: "Set the queue dispatch budget; 0 removes the limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpm, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("calls per minute must be a number: %w", err)
			}
			return a.withSettings(cmd, func(repo *data.SettingsRepo) error {
				if err := repo.SetCallsPerMinute(cmd.Context(), cpm); err != nil {
					return err
				}
				a.logger.InfoContext(cmd.Context(), "dispatch budget updated",
					"calls_per_minute", cpm,
					"interval", job.IntervalFor(cpm).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newSettingsSetModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-models <id:provider_model:max_days:refresh_every,...>",
		Short: "Replace the forecast model catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := config.ParseModelCatalog(args[0])
			if err != nil {
				return err
			}
			return a.withSettings(cmd, func(repo *data.SettingsRepo) error {
				if err := repo.SetModels(cmd.Context(), models); err != nil {
					return err
				}
				a.logger.InfoContext(cmd.Context(), "model catalogue updated", "models", len(models))
				return nil
			})
		},
	}
}
