package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/slopecast/slopecast-api/internal/bootstrap"
)

const disconnectTimeout = 5 * time.Second

type infraNeeds struct {
	DB    bool
	Redis bool
	Mongo bool
}

// infra holds the connections a command asked for. Unrequested ones stay nil.
type infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	Mongo *mongo.Client
}

// connect opens the requested connections. On failure everything already opened is closed.
func (a *app) connect(ctx context.Context, needs infraNeeds) (*infra, error) {
	out := &infra{}

	fail := func(err error) (*infra, error) {
		if cerr := out.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	if needs.DB {
		db, err := bootstrap.ConnectDB(ctx, a.cfg.Postgres, a.logger)
		if err != nil {
			return fail(fmt.Errorf("connect db: %w", err))
		}
		out.DB = db
	}
	if needs.Redis {
		client, err := bootstrap.ConnectRedis(ctx, a.cfg.Redis, a.logger)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		out.Redis = client
	}
	if needs.Mongo {
		client, err := bootstrap.ConnectMongo(ctx, a.cfg.Mongo, a.logger)
		if err != nil {
			return fail(fmt.Errorf("connect mongo: %w", err))
		}
		out.Mongo = client
	}
	return out, nil
}

func (i *infra) close() error {
	var errs []error
	if i.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		if err := i.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
		cancel()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// closeInfra closes connections at the end of a command, logging rather than failing.
func (a *app) closeInfra(i *infra) {
	if i == nil {
		return
	}
	if err := i.close(); err != nil {
		a.logger.Warn("closing connections failed", "error", err)
	}
}

// services wires the full service container over an infra holding all three stores.
func (a *app) services(ctx context.Context, i *infra) (bootstrap.ServiceContainer, error) {
	return bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:            &a.cfg,
		DB:                i.DB,
		RedisClient:       i.Redis,
		WeatherCollection: bootstrap.WeatherCollection(i.Mongo, a.cfg.Mongo),
		Logger:            a.logger,
	})
}
