package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/slopecast/slopecast-api/config"
)

// ConnectMongo connects to the weather document store and pings the primary.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("mongo configuration requires a URI")
	}
	timeout := durationOr(cfg.ConnectTimeout, 10*time.Second)

	opts := options.Client().
		ApplyURI(uri).
		SetAppName(applicationName).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, errors.Join(fmt.Errorf("ping mongo: %w", err), client.Disconnect(context.WithoutCancel(ctx)))
	}

	if logger != nil {
		logger.InfoContext(ctx, "mongo connected", "database", cfg.Database, "collection", cfg.Collection)
	}
	return client, nil
}

// WeatherCollection returns the collection holding hourly weather documents, or nil without a
// client.
func WeatherCollection(client *mongo.Client, cfg config.MongoConfig) *mongo.Collection {
	if client == nil {
		return nil
	}
	return client.Database(cfg.Database).Collection(cfg.Collection)
}
