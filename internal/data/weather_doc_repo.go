package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/slopecast/slopecast-api/internal/core"
)

const weatherDocIndexName = "weather_unit_ts_unique"

// ErrMalformedWeatherBody is returned when a provider body has no usable hourly series.
var ErrMalformedWeatherBody = errors.New("malformed weather body")

// bulkWriter is the subset of *mongo.Collection used for upserts.
type bulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// hourlyRecord is one timestamp of a provider hourly series.
type hourlyRecord struct {
	Timestamp time.Time
	Values    map[string]any
}

// weatherDocument is the stored shape of one hourly record.
type weatherDocument struct {
	LocationID string         `bson:"location_id"`
	Model      string         `bson:"model"`
	Elevation  string         `bson:"elevation"`
	Timestamp  time.Time      `bson:"timestamp"`
	Context    string         `bson:"context"`
	Values     map[string]any `bson:"values"`
	FetchedAt  time.Time      `bson:"fetched_at"`
}

// WeatherDocRepo stores provider responses in MongoDB as one document per hourly timestamp,
// upserted on (location_id, model, elevation, timestamp).
type WeatherDocRepo struct {
	collection *mongo.Collection
	writer     bulkWriter
	clock      Clock
	logger     *slog.Logger
}

// WeatherDocRepoOptions configures a WeatherDocRepo.
type WeatherDocRepoOptions struct {
	Collection *mongo.Collection
	Clock      Clock
	Logger     *slog.Logger
}

// NewWeatherDocRepo creates a new WeatherDocRepo.
func NewWeatherDocRepo(opts WeatherDocRepoOptions) *WeatherDocRepo {
	tp := opts.Clock
	if tp == nil {
		tp = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherDocRepo{
		collection: opts.Collection,
		writer:     opts.Collection,
		clock:      tp,
		logger:     logger.With("component", "weather_doc_repo"),
	}
}

// EnsureIndexes creates the unique index backing idempotent upserts.
func (r *WeatherDocRepo) EnsureIndexes(ctx context.Context) error {
	if r.collection == nil {
		return errors.New("weather collection not configured")
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "location_id", Value: 1},
			{Key: "model", Value: 1},
			{Key: "elevation", Value: 1},
			{Key: "timestamp", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(weatherDocIndexName),
	})
	if err != nil {
		return fmt.Errorf("ensure weather index: %w", err)
	}
	r.logger.Info("mongo index ensured", "collection", r.collection.Name(), "index", weatherDocIndexName)
	return nil
}

// UpsertWeather splits the body into hourly records and upserts each. Returns the number of
// records written.
func (r *WeatherDocRepo) UpsertWeather(ctx context.Context, params core.UpsertWeatherParams) (int, error) {
	if r.writer == nil {
		return 0, errors.New("weather collection not configured")
	}
	records, err := splitHourly(params.Body)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	fetchedAt := r.clock.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc := weatherDocument{
			LocationID: params.LocationID,
			Model:      params.ModelID,
			Elevation:  params.Elevation,
			Timestamp:  rec.Timestamp,
			Context:    string(params.Context),
			Values:     rec.Values,
			FetchedAt:  fetchedAt,
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"location_id": doc.LocationID,
				"model":       doc.Model,
				"elevation":   doc.Elevation,
				"timestamp":   doc.Timestamp,
			}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	if _, err := r.writer.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, fmt.Errorf("bulk upsert weather docs: %w", err)
	}
	return len(records), nil
}

// splitHourly turns the provider's columnar hourly block into per-timestamp records.
// Timestamps are unix seconds.
func splitHourly(body []byte) ([]hourlyRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedWeatherBody)
	}
	hourly := gjson.GetBytes(body, "hourly")
	if !hourly.Exists() {
		return nil, nil
	}
	times := hourly.Get("time")
	if !times.IsArray() {
		return nil, fmt.Errorf("%w: hourly.time is not an array", ErrMalformedWeatherBody)
	}

	stamps := times.Array()
	records := make([]hourlyRecord, len(stamps))
	for i, ts := range stamps {
		if ts.Type != gjson.Number {
			return nil, fmt.Errorf("%w: hourly.time[%d] is not a unix timestamp", ErrMalformedWeatherBody, i)
		}
		records[i] = hourlyRecord{
			Timestamp: time.Unix(ts.Int(), 0).UTC(),
			Values:    make(map[string]any),
		}
	}

	hourly.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "time" || !value.IsArray() {
			return true
		}
		for i, v := range value.Array() {
			if i >= len(records) {
				break
			}
			records[i].Values[name] = v.Value()
		}
		return true
	})
	return records, nil
}
