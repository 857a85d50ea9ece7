package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slopecast/slopecast-api/internal/domain/model"
)

const (
	settingsKey = "slopecast:settings"

	settingsFieldCallsPerMinute = "calls_per_minute"
	settingsFieldModels         = "models"
	settingsFieldRetryAttempts  = "retry_max_attempts"
	settingsFieldRetryBackoffMS = "retry_backoff_ms"
)

// SettingsDefaults are used for any field not overridden in Redis.
type SettingsDefaults struct {
	CallsPerMinute float64
	Models         []model.ForecastModel
	Retry          model.RetryPolicy
}

// SettingsRepo serves runtime-tunable settings from a Redis hash, falling back to
// configured defaults. Values are read on every call and never cached.
type SettingsRepo struct {
	client   redis.UniversalClient
	defaults SettingsDefaults
}

// NewSettingsRepo creates a new SettingsRepo. A nil client serves defaults only.
func NewSettingsRepo(client redis.UniversalClient, defaults SettingsDefaults) *SettingsRepo {
	return &SettingsRepo{client: client, defaults: defaults}
}

func (r *SettingsRepo) field(ctx context.Context, name string) (string, bool, error) {
	if r.client == nil {
		return "", false, nil
	}
	val, err := r.client.HGet(ctx, settingsKey, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis hget %s: %w", name, err)
	}
	return val, true, nil
}

// CallsPerMinute returns the dispatch budget for the queue processor.
func (r *SettingsRepo) CallsPerMinute(ctx context.Context) (float64, error) {
	val, ok, err := r.field(ctx, settingsFieldCallsPerMinute)
	if err != nil {
		return r.defaults.CallsPerMinute, err
	}
	if !ok {
		return r.defaults.CallsPerMinute, nil
	}
	cpm, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return r.defaults.CallsPerMinute, fmt.Errorf("parse %s %q: %w", settingsFieldCallsPerMinute, val, err)
	}
	return cpm, nil
}

// SetCallsPerMinute overrides the dispatch budget. Zero removes the restriction.
func (r *SettingsRepo) SetCallsPerMinute(ctx context.Context, cpm float64) error {
	if r.client == nil {
		return errors.New("settings store not configured")
	}
	if cpm < 0 || math.IsNaN(cpm) || math.IsInf(cpm, 0) {
		return fmt.Errorf("calls per minute must be a finite value >= 0, got %v", cpm)
	}
	val := strconv.FormatFloat(cpm, 'f', -1, 64)
	if err := r.client.HSet(ctx, settingsKey, settingsFieldCallsPerMinute, val).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", settingsFieldCallsPerMinute, err)
	}
	return nil
}

// Models returns the enabled forecast models.
func (r *SettingsRepo) Models(ctx context.Context) ([]model.ForecastModel, error) {
	all := r.defaults.Models
	val, ok, err := r.field(ctx, settingsFieldModels)
	if err != nil {
		return enabledModels(all), err
	}
	if ok {
		var stored []model.ForecastModel
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return enabledModels(all), fmt.Errorf("decode %s: %w", settingsFieldModels, err)
		}
		all = stored
	}
	return enabledModels(all), nil
}

// SetModels replaces the model catalogue.
func (r *SettingsRepo) SetModels(ctx context.Context, models []model.ForecastModel) error {
	if r.client == nil {
		return errors.New("settings store not configured")
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("encode %s: %w", settingsFieldModels, err)
	}
	if err := r.client.HSet(ctx, settingsKey, settingsFieldModels, raw).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", settingsFieldModels, err)
	}
	return nil
}

func enabledModels(all []model.ForecastModel) []model.ForecastModel {
	out := make([]model.ForecastModel, 0, len(all))
	for _, m := range all {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// RetryPolicy returns the unit-level fetch retry tunables.
func (r *SettingsRepo) RetryPolicy(ctx context.Context) (model.RetryPolicy, error) {
	policy := r.defaults.Retry
	if r.client == nil {
		return policy, nil
	}

	vals, err := r.client.HMGet(ctx, settingsKey, settingsFieldRetryAttempts, settingsFieldRetryBackoffMS).Result()
	if err != nil {
		return policy, fmt.Errorf("redis hmget retry policy: %w", err)
	}
	if s, ok := vals[0].(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return r.defaults.Retry, fmt.Errorf("invalid %s %q", settingsFieldRetryAttempts, s)
		}
		policy.MaxAttempts = n
	}
	if s, ok := vals[1].(string); ok {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms < 0 {
			return r.defaults.Retry, fmt.Errorf("invalid %s %q", settingsFieldRetryBackoffMS, s)
		}
		policy.BackoffBase = time.Duration(ms) * time.Millisecond
	}
	return policy, nil
}
