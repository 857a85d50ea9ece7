package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/internal/data"
	"github.com/slopecast/slopecast-api/internal/domain/job"
	"github.com/slopecast/slopecast-api/internal/service"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the job queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			infra, err := a.connect(ctx, infraNeeds{DB: true, Redis: true})
			if err != nil {
				return err
			}
			defer a.closeInfra(infra)

			settings, err := a.settingsRepo(infra.Redis)
			if err != nil {
				return err
			}
			queue, err := service.NewQueueService(service.QueueServiceOptions{
				Repo:    data.NewJobRepo(infra.DB, data.RepoConfig{Logger: a.logger}),
				Gate:    job.NewGate(settings),
				Waiters: job.NewWaiterBridge(),
				Logger:  a.logger,
			})
			if err != nil {
				return err
			}
			status, err := queue.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("queue status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

// settingsRepo builds the settings store over Redis with configured defaults.
func (a *app) settingsRepo(client redis.UniversalClient) (*data.SettingsRepo, error) {
	models, err := a.cfg.Fetch.ParseModels()
	if err != nil {
		return nil, fmt.Errorf("parse model catalogue: %w", err)
	}
	return data.NewSettingsRepo(client, data.SettingsDefaults{
		CallsPerMinute: a.cfg.Queue.CallsPerMinute,
		Models:         models,
		Retry:          a.cfg.Fetch.RetryPolicy(),
	}), nil
}
