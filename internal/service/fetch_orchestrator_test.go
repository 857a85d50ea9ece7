package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopecast/slopecast-api/internal/adapters/openmeteo"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
	"github.com/slopecast/slopecast-api/internal/testutil"
)

type fakeLocations struct {
	locations []model.Location
	err       error
	lastIDs   []string
}

func (f *fakeLocations) List(_ context.Context, ids []string) ([]model.Location, error) {
	f.lastIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	if len(ids) == 0 {
		return f.locations, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]model.Location, 0)
	for _, l := range f.locations {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLocations) Upsert(context.Context, model.Location) error { return nil }

type fakeSettings struct {
	cpm       float64
	models    []model.ForecastModel
	modelsErr error
	retry     model.RetryPolicy
}

func (f *fakeSettings) CallsPerMinute(context.Context) (float64, error) { return f.cpm, nil }

func (f *fakeSettings) Models(context.Context) ([]model.ForecastModel, error) {
	return f.models, f.modelsErr
}

func (f *fakeSettings) RetryPolicy(context.Context) (model.RetryPolicy, error) { return f.retry, nil }

type fakeFreshness struct {
	mu     sync.Mutex
	last   map[string]time.Time
	marked map[string]time.Time
}

func newFakeFreshness() *fakeFreshness {
	return &fakeFreshness{last: map[string]time.Time{}, marked: map[string]time.Time{}}
}

func (f *fakeFreshness) LastFetched(_ context.Context, id string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.last[id]
	return at, ok, nil
}

func (f *fakeFreshness) MarkFetched(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[id] = at
	return nil
}

// scriptedFetcher answers each unit from a function of the unit key and attempt number.
type scriptedFetcher struct {
	mu       sync.Mutex
	attempts map[string]int
	respond  func(unit model.FetchUnit, attempt int) (model.UnitSummary, error)
}

func newScriptedFetcher(respond func(model.FetchUnit, int) (model.UnitSummary, error)) *scriptedFetcher {
	return &scriptedFetcher{attempts: map[string]int{}, respond: respond}
}

func unitKey(u model.FetchUnit) string {
	return fmt.Sprintf("%s/%s/%s", u.Location.ID, u.Model.ID, u.Elevation.Name)
}

func (f *scriptedFetcher) FetchUnit(_ context.Context, u model.FetchUnit) (model.UnitSummary, error) {
	f.mu.Lock()
	f.attempts[unitKey(u)]++
	n := f.attempts[unitKey(u)]
	f.mu.Unlock()
	if f.respond == nil {
		return model.UnitSummary{ModelID: u.Model.ID, Elevation: u.Elevation.Name}, nil
	}
	return f.respond(u, n)
}

func (f *scriptedFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.attempts {
		total += n
	}
	return total
}

func (f *scriptedFetcher) distinctUnits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordingEvents struct {
	mu     sync.Mutex
	events []model.AdminEvent
}

func (r *recordingEvents) Log(_ context.Context, ev model.AdminEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) ofType(typ string) []model.AdminEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AdminEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type orchestratorFixture struct {
	locations *fakeLocations
	settings  *fakeSettings
	freshness *fakeFreshness
	fetcher   *scriptedFetcher
	sleeper   *recordingSleeper
	events    *recordingEvents
	recorder  *statsd.Recorder
	now       time.Time
	orch      *FetchOrchestrator
}

func newOrchestratorFixture(t *testing.T, fetcher *scriptedFetcher) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		locations: &fakeLocations{locations: []model.Location{
			testutil.NewLocation("vail", "Vail"),
			testutil.NewLocation("aspen", "Aspen"),
		}},
		settings: &fakeSettings{
			models: []model.ForecastModel{
				testutil.NewForecastModel("gfs", 16),
				testutil.NewForecastModel("ecmwf", 15),
			},
			retry: model.RetryPolicy{MaxAttempts: 3, BackoffBase: 2 * time.Second},
		},
		freshness: newFakeFreshness(),
		fetcher:   fetcher,
		sleeper:   &recordingSleeper{},
		events:    &recordingEvents{},
		recorder:  &statsd.Recorder{},
		now:       time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC),
	}
	orch, err := NewFetchOrchestrator(FetchOrchestratorOptions{
		Stores: FetchStores{
			Locations: f.locations,
			Settings:  f.settings,
			Freshness: f.freshness,
		},
		Fetcher: fetcher,
		Events:  f.events,
		Metrics: f.recorder,
		Now:     func() time.Time { return f.now },
		Sleep:   f.sleeper.Sleep,
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestNewFetchOrchestratorValidation(t *testing.T) {
	fetcher := newScriptedFetcher(nil)
	_, err := NewFetchOrchestrator(FetchOrchestratorOptions{Fetcher: fetcher, Stores: FetchStores{Settings: &fakeSettings{}}})
	require.Error(t, err)
	_, err = NewFetchOrchestrator(FetchOrchestratorOptions{Fetcher: fetcher, Stores: FetchStores{Locations: &fakeLocations{}}})
	require.Error(t, err)
	_, err = NewFetchOrchestrator(FetchOrchestratorOptions{Stores: FetchStores{Locations: &fakeLocations{}, Settings: &fakeSettings{}}})
	require.Error(t, err)
}

func TestFetchOrchestrator_FansOutEveryUnitOnce(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(nil))

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
	require.NoError(t, err)

	// 2 locations × 2 models × 3 elevations
	assert.Equal(t, 12, f.fetcher.distinctUnits())
	assert.Equal(t, 12, f.fetcher.totalCalls())
	assert.Equal(t, 2, report.Locations)
	assert.Equal(t, 12, report.UnitsTotal)
	assert.Zero(t, report.UnitsFailed)
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{"ecmwf", "gfs"}, report.FreshModels)
	assert.Len(t, f.freshness.marked, 2)
	assert.Empty(t, f.sleeper.delays)
	assert.Len(t, f.events.ofType(model.AdminEventFetchCompleted), 1)
	assert.Empty(t, f.events.ofType(model.AdminEventFetchFailed))
	assert.InDelta(t, 12, f.recorder.Sum("weather.unit"), 0)
}

func TestFetchOrchestrator_AllUnitsFailStillCompletes(t *testing.T) {
	boom := errors.New("503 from provider")
	f := newOrchestratorFixture(t, newScriptedFetcher(func(model.FetchUnit, int) (model.UnitSummary, error) {
		return model.UnitSummary{}, boom
	}))

	done := make(chan struct{})
	var (
		report *model.FetchReport
		err    error
	)
	go func() {
		defer close(done)
		report, err = f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextForecast, Force: true})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not complete")
	}

	require.NoError(t, err)
	assert.Equal(t, 12, f.fetcher.distinctUnits())
	assert.Equal(t, 36, f.fetcher.totalCalls(), "three attempts per unit")
	assert.Equal(t, 12, report.UnitsFailed)
	assert.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors["vail"], boom.Error())
	assert.Empty(t, report.FreshModels)
	assert.Empty(t, f.freshness.marked, "freshness is untouched when nothing succeeded")
	assert.Len(t, f.events.ofType(model.AdminEventFetchFailed), 2)
	assert.Len(t, f.events.ofType(model.AdminEventFetchCompleted), 1)
}

func TestFetchOrchestrator_RetriesWithLinearBackoff(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(func(u model.FetchUnit, attempt int) (model.UnitSummary, error) {
		if attempt < 3 {
			return model.UnitSummary{}, errors.New("timeout")
		}
		return model.UnitSummary{ModelID: u.Model.ID, RequestedDays: 5, ActualDays: 5}, nil
	}))
	f.locations.locations = f.locations.locations[:1]
	f.locations.locations[0].Elevations = f.locations.locations[0].Elevations[:1]
	f.settings.models = f.settings.models[:1]

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
	require.NoError(t, err)

	assert.Equal(t, 3, f.fetcher.totalCalls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeper.delays)
	assert.Zero(t, report.UnitsFailed)
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{"gfs"}, report.FreshModels)
	assert.InDelta(t, 2, f.recorder.Sum("weather.unit_retries"), 0)
}

type terminalError struct{}

func (terminalError) Error() string   { return "400 bad request" }
func (terminalError) Retryable() bool { return false }

func TestFetchOrchestrator_NonRetryableErrorStopsEarly(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(func(model.FetchUnit, int) (model.UnitSummary, error) {
		return model.UnitSummary{}, fmt.Errorf("wrapped: %w", terminalError{})
	}))

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
	require.NoError(t, err)
	assert.Equal(t, 12, f.fetcher.totalCalls())
	assert.Equal(t, 12, report.UnitsFailed)
	assert.Empty(t, f.sleeper.delays)
}

func TestFetchOrchestrator_ProviderErrorStages(t *testing.T) {
	tests := []struct {
		name      string
		err       *openmeteo.ProviderError
		wantCalls int
		wantFail  int
	}{
		{
			name:      "store failure after 200 is retried",
			err:       &openmeteo.ProviderError{Stage: openmeteo.StageStore, StatusCode: 200, Err: errors.New("mongo down")},
			wantCalls: 3,
		},
		{
			name:      "build failure is not retried",
			err:       &openmeteo.ProviderError{Stage: openmeteo.StageBuild, Err: errors.New("missing endpoint")},
			wantCalls: 1,
			wantFail:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, newScriptedFetcher(func(u model.FetchUnit, attempt int) (model.UnitSummary, error) {
				if tt.err.Stage == openmeteo.StageBuild || attempt < 3 {
					return model.UnitSummary{}, tt.err
				}
				return model.UnitSummary{ModelID: u.Model.ID}, nil
			}))
			f.locations.locations = f.locations.locations[:1]
			f.locations.locations[0].Elevations = f.locations.locations[0].Elevations[:1]
			f.settings.models = f.settings.models[:1]

			report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, f.fetcher.totalCalls())
			assert.Equal(t, tt.wantFail, report.UnitsFailed)
		})
	}
}

func TestFetchOrchestrator_PartialSuccessMarksOnlySucceededModels(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(func(u model.FetchUnit, _ int) (model.UnitSummary, error) {
		if u.Model.ID == "ecmwf" {
			return model.UnitSummary{}, errors.New("model unavailable")
		}
		if u.Location.ID == "vail" && u.Elevation.Name == "top" {
			return model.UnitSummary{}, errors.New("one bad unit")
		}
		return model.UnitSummary{ModelID: u.Model.ID}, nil
	}))

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
	require.NoError(t, err)
	assert.Equal(t, 12, report.UnitsTotal)
	assert.Equal(t, 7, report.UnitsFailed)
	assert.Equal(t, []string{"gfs"}, report.FreshModels)
	_, ecmwfMarked := f.freshness.marked["ecmwf"]
	assert.False(t, ecmwfMarked)
	assert.Equal(t, f.now, f.freshness.marked["gfs"])
}

func TestFetchOrchestrator_FreshnessSkip(t *testing.T) {
	tests := []struct {
		name      string
		req       FetchRequest
		wantCalls int
		wantSkip  []string
	}{
		{
			name:      "forecast skips fresh model",
			req:       FetchRequest{Context: model.FetchContextForecast},
			wantCalls: 6,
			wantSkip:  []string{"gfs"},
		},
		{
			name:      "force overrides freshness",
			req:       FetchRequest{Context: model.FetchContextForecast, Force: true},
			wantCalls: 12,
		},
		{
			name:      "manual never skips",
			req:       FetchRequest{Context: model.FetchContextManual},
			wantCalls: 12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, newScriptedFetcher(nil))
			f.freshness.last["gfs"] = f.now.Add(-time.Hour)       // refresh every 3h: fresh
			f.freshness.last["ecmwf"] = f.now.Add(-4 * time.Hour) // stale

			report, err := f.orch.Run(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, f.fetcher.totalCalls())
			assert.Equal(t, tt.wantSkip, report.Skipped)
		})
	}
}

func TestFetchOrchestrator_AllModelsFresh(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(nil))
	f.freshness.last["gfs"] = f.now.Add(-time.Minute)
	f.freshness.last["ecmwf"] = f.now.Add(-time.Minute)

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextForecast})
	require.NoError(t, err)
	assert.Zero(t, f.fetcher.totalCalls())
	assert.ElementsMatch(t, []string{"gfs", "ecmwf"}, report.Skipped)
	assert.Nil(t, f.locations.lastIDs)
}

func TestFetchOrchestrator_BackfillDoesNotMarkFreshness(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(nil))
	window, err := model.NewDateWindow(f.now.AddDate(0, 0, -7), f.now.AddDate(0, 0, -1))
	require.NoError(t, err)

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextBackfill, Window: window})
	require.NoError(t, err)
	assert.Equal(t, 12, f.fetcher.totalCalls())
	assert.Empty(t, report.FreshModels)
	assert.Empty(t, f.freshness.marked)
}

func TestFetchOrchestrator_CoverageDiscrepancyIsWarningOnly(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(func(u model.FetchUnit, _ int) (model.UnitSummary, error) {
		return model.UnitSummary{ModelID: u.Model.ID, RequestedDays: 16, ActualDays: 10}, nil
	}))

	report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
	require.NoError(t, err)
	assert.Zero(t, report.UnitsFailed)
	assert.InDelta(t, 12, f.recorder.Sum("weather.coverage_discrepancy"), 0)
}

func TestFetchOrchestrator_FiltersLocations(t *testing.T) {
	f := newOrchestratorFixture(t, newScriptedFetcher(nil))

	report, err := f.orch.Run(context.Background(), FetchRequest{
		Context:     model.FetchContextManual,
		LocationIDs: []string{"aspen"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aspen"}, f.locations.lastIDs)
	assert.Equal(t, 1, report.Locations)
	assert.Equal(t, 6, report.UnitsTotal)
}

func TestFetchOrchestrator_Errors(t *testing.T) {
	t.Run("invalid context", func(t *testing.T) {
		f := newOrchestratorFixture(t, newScriptedFetcher(nil))
		_, err := f.orch.Run(context.Background(), FetchRequest{Context: "sometimes"})
		require.Error(t, err)
	})

	t.Run("models unavailable", func(t *testing.T) {
		f := newOrchestratorFixture(t, newScriptedFetcher(nil))
		f.settings.models = nil
		f.settings.modelsErr = errors.New("redis down")
		_, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
		require.Error(t, err)
	})

	t.Run("models degraded to defaults", func(t *testing.T) {
		f := newOrchestratorFixture(t, newScriptedFetcher(nil))
		f.settings.modelsErr = errors.New("decode failed")
		report, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
		require.NoError(t, err)
		assert.Equal(t, 12, report.UnitsTotal)
	})

	t.Run("locations unavailable", func(t *testing.T) {
		f := newOrchestratorFixture(t, newScriptedFetcher(nil))
		f.locations.err = errors.New("db down")
		_, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextManual})
		require.Error(t, err)
	})
}

func TestFetchOrchestrator_ForwardsUnitParameters(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []model.FetchUnit
	)
	f := newOrchestratorFixture(t, newScriptedFetcher(func(u model.FetchUnit, _ int) (model.UnitSummary, error) {
		mu.Lock()
		seen = append(seen, u)
		mu.Unlock()
		return model.UnitSummary{}, nil
	}))

	_, err := f.orch.Run(context.Background(), FetchRequest{Context: model.FetchContextForecast, ForwardDays: 10, Force: true})
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	for _, u := range seen {
		assert.Equal(t, 10, u.ForwardDays)
		assert.Equal(t, model.FetchContextForecast, u.Context)
		assert.True(t, u.Window.IsZero())
	}
}
