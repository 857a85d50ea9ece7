package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slopecast/slopecast-api/internal/bootstrap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the services listed in SERVICES until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := &a.cfg
	a.logger.InfoContext(ctx, "starting slopecast service",
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"mongo_database", cfg.Mongo.Database,
		"enabled_services", bootstrap.ServiceNames(cfg))

	if _, err := cfg.EnabledServices(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	infra, err := a.connect(ctx, infraNeeds{DB: true, Redis: true, Mongo: true})
	if err != nil {
		return err
	}
	defer a.closeInfra(infra)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, infra.DB, a.logger); err != nil {
			return err
		}
	} else {
		a.logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := a.services(ctx, infra)
	if err != nil {
		return err
	}

	return bootstrap.Run(ctx, bootstrap.RunConfig{
		Config:   cfg,
		Services: services,
		DB:       infra.DB,
		Redis:    infra.Redis,
		Mongo:    infra.Mongo,
		Logger:   a.logger,
	})
}
