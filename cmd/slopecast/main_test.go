package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopecast/slopecast-api/config"
	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/service"
)

func testApp(cfg config.AppConfig) *app {
	a := newApp(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.load = func() (config.AppConfig, error) { return cfg, nil }
	return a
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd(testApp(config.AppConfig{}))
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "fetch", "backfill", "status", "migrate", "locations", "settings", "reap"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_ConfigLoadFailure(t *testing.T) {
	a := testApp(config.AppConfig{})
	a.load = func() (config.AppConfig, error) { return config.AppConfig{}, errors.New("bad env") }

	_, err := execute(t, a, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad env")
}

func TestCommands_RejectBadInputBeforeConnecting(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "fetch bad start", args: []string{"fetch", "--start", "2025-13-01"}, wantErr: "--start"},
		{name: "fetch bad end", args: []string{"fetch", "--end", "tomorrow"}, wantErr: "--end"},
		{name: "backfill negative days", args: []string{"backfill", "--days", "-3"}, wantErr: "--days"},
		{name: "migrate zero timeout", args: []string{"migrate", "--timeout", "0s"}, wantErr: "--timeout"},
		{name: "set-rate not a number", args: []string{"settings", "set-rate", "fast"}, wantErr: "must be a number"},
		{name: "set-models bad catalogue", args: []string{"settings", "set-models", "gfs:gfs_seamless"}, wantErr: "invalid model entry"},
		{name: "import needs a file", args: []string{"locations", "import"}, wantErr: "accepts 1 arg"},
		{name: "status takes no args", args: []string{"status", "extra"}, wantErr: "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, testApp(config.AppConfig{}), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFetchFlags_Options(t *testing.T) {
	opts, err := fetchFlags{
		context:   " Forecast ",
		locations: []string{"whistler", " ", "whistler", "zermatt"},
		start:     "2025-02-01",
		end:       "2025-02-03",
		force:     true,
	}.options()
	require.NoError(t, err)

	assert.Equal(t, model.FetchContextForecast, opts.Context)
	assert.Equal(t, []string{"whistler", "zermatt"}, opts.LocationIDs)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), opts.Start)
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), opts.End)
	assert.True(t, opts.Force)
}

func TestFetchFlags_OptionsWithoutDates(t *testing.T) {
	opts, err := fetchFlags{context: "manual"}.options()
	require.NoError(t, err)
	assert.True(t, opts.Start.IsZero())
	assert.True(t, opts.End.IsZero())
	assert.Nil(t, opts.LocationIDs)
}

type recordingRunner struct {
	reqs []service.FetchRequest
}

func (r *recordingRunner) Run(_ context.Context, req service.FetchRequest) (*model.FetchReport, error) {
	r.reqs = append(r.reqs, req)
	return &model.FetchReport{Context: req.Context}, nil
}

func TestBackfillFlags_Plan(t *testing.T) {
	now := time.Date(2025, 2, 10, 15, 0, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2025, 2, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name       string
		flags      backfillFlags
		wantIDs    []string
		wantWindow model.DateWindow
	}{
		{
			name:       "selected locations use the default window",
			flags:      backfillFlags{locations: []string{"whistler"}},
			wantIDs:    []string{"whistler"},
			wantWindow: model.DateWindow{Start: day(3), End: day(9)},
		},
		{
			name:       "selected locations with explicit days",
			flags:      backfillFlags{days: 2, locations: []string{"whistler", "zermatt"}},
			wantIDs:    []string{"whistler", "zermatt"},
			wantWindow: model.DateWindow{Start: day(8), End: day(9)},
		},
		{
			name:       "all locations",
			flags:      backfillFlags{days: 3},
			wantWindow: model.DateWindow{Start: day(7), End: day(9)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			svc, err := service.NewWeatherService(service.WeatherServiceOptions{
				Runner:       runner,
				BackfillDays: 7,
				Now:          func() time.Time { return now },
			})
			require.NoError(t, err)

			run, err := tt.flags.plan()
			require.NoError(t, err)
			_, err = run(context.Background(), svc)
			require.NoError(t, err)

			require.Len(t, runner.reqs, 1)
			req := runner.reqs[0]
			assert.Equal(t, model.FetchContextBackfill, req.Context)
			assert.Equal(t, tt.wantIDs, req.LocationIDs)
			assert.True(t, tt.wantWindow.Start.Equal(req.Window.Start))
			assert.True(t, tt.wantWindow.End.Equal(req.Window.End))
		})
	}
}

func TestReadLocations(t *testing.T) {
	body := `[{"id":"whistler","name":"Whistler","latitude":50.11,"longitude":-122.95,
		"timezone":"America/Vancouver","elevations":[{"name":"base","meters":675},{"name":"top","meters":2182}]}]`

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locations.json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		locs, err := readLocations(strings.NewReader(""), path)
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, "whistler", locs[0].ID)
		assert.Len(t, locs[0].Elevations, 2)
	})

	t.Run("from stdin", func(t *testing.T) {
		locs, err := readLocations(strings.NewReader(body), "-")
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, "America/Vancouver", locs[0].Timezone)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := readLocations(strings.NewReader(`[{"name":"nowhere"}]`), "-")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "location 0")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := readLocations(strings.NewReader(`nope`), "-")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode locations")
	})
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, service.CleanupResult{Jobs: 3, Events: 1}))
	assert.JSONEq(t, `{"jobs_deleted":3,"events_deleted":1}`, buf.String())
}
