package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slopecast/slopecast-api/internal/domain/model"
	"github.com/slopecast/slopecast-api/internal/observability/statsd"
)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	forced []bool
	report *model.FetchReport
	err    error
}

func (f *fakeRefresher) FetchForecastLocations(_ context.Context, ids []string, force bool) (*model.FetchReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.forced = append(f.forced, force || ids != nil)
	return f.report, f.err
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Refresher: &fakeRefresher{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, r.interval)
}

func TestRunner_Tick(t *testing.T) {
	tests := []struct {
		name       string
		report     *model.FetchReport
		err        error
		wantResult string
	}{
		{name: "batch ran", report: &model.FetchReport{UnitsTotal: 6}, wantResult: "success"},
		{name: "all fresh", report: &model.FetchReport{Skipped: []string{"gfs"}}, wantResult: "noop"},
		{name: "failed", err: errors.New("load locations"), wantResult: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &fakeRefresher{report: tt.report, err: tt.err}
			rec := &statsd.Recorder{}
			r, err := NewRunner(RunnerOptions{Refresher: ref, Metrics: rec})
			require.NoError(t, err)

			r.Tick(context.Background())

			assert.Equal(t, 1, ref.callCount())
			assert.Equal(t, []bool{false}, ref.forced, "refresher never forces and never filters")
			ticks := rec.Named("refresher.tick")
			require.Len(t, ticks, 1)
			assert.Equal(t, tt.wantResult, ticks[0].Tags["result"])
		})
	}
}

func TestRunner_Run(t *testing.T) {
	ref := &fakeRefresher{report: &model.FetchReport{}}
	r, err := NewRunner(RunnerOptions{Refresher: ref, Interval: 10 * time.Millisecond, RunAtStart: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return ref.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
