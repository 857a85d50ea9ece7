package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const freshnessKeyPrefix = "slopecast:freshness:"

// FreshnessRepo stores the last successful fetch instant per forecast model in Redis.
type FreshnessRepo struct {
	client redis.UniversalClient
}

// NewFreshnessRepo creates a new FreshnessRepo.
func NewFreshnessRepo(client redis.UniversalClient) *FreshnessRepo {
	return &FreshnessRepo{client: client}
}

func freshnessKey(modelID string) string {
	return freshnessKeyPrefix + modelID
}

// LastFetched returns when the model was last marked fresh. ok is false when it never was.
func (r *FreshnessRepo) LastFetched(ctx context.Context, modelID string) (time.Time, bool, error) {
	if modelID == "" {
		return time.Time{}, false, errors.New("model id cannot be empty")
	}

	val, err := r.client.Get(ctx, freshnessKey(modelID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get freshness: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse freshness marker for %s: %w", modelID, err)
	}
	return at, true, nil
}

// MarkFetched records at as the model's last successful fetch.
func (r *FreshnessRepo) MarkFetched(ctx context.Context, modelID string, at time.Time) error {
	if modelID == "" {
		return errors.New("model id cannot be empty")
	}
	if err := r.client.Set(ctx, freshnessKey(modelID), at.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("redis set freshness: %w", err)
	}
	return nil
}
