package main

import (
	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/internal/adapters/reaper"
)

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Run one retention sweep over finished jobs and admin events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			infra, err := a.connect(ctx, infraNeeds{DB: true})
			if err != nil {
				return err
			}
			defer a.closeInfra(infra)

			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:     infra.DB,
				Config: a.cfg.Reaper,
				Logger: a.logger,
			})
			if err != nil {
				return err
			}
			result, err := runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
