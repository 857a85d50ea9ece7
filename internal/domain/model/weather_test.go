package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateWindow(t *testing.T) {
	start := time.Date(2025, 1, 10, 15, 30, 0, 0, time.UTC)
	end := time.Date(2025, 1, 12, 1, 0, 0, 0, time.UTC)

	w, err := NewDateWindow(start, end)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 3, w.Days())
	assert.False(t, w.IsZero())

	_, err = NewDateWindow(end, start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestDateWindow_SingleDay(t *testing.T) {
	day := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	w, err := NewDateWindow(day, day)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Days())
	assert.Equal(t, 0, DateWindow{}.Days())
	assert.True(t, DateWindow{}.IsZero())
}

func TestFetchContext(t *testing.T) {
	tests := []struct {
		ctx        FetchContext
		valid      bool
		marksFresh bool
	}{
		{FetchContextForecast, true, true},
		{FetchContextManual, true, true},
		{FetchContextBackfill, true, false},
		{FetchContext("other"), false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ctx), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.ctx.Valid())
			assert.Equal(t, tt.marksFresh, tt.ctx.MarksFreshness())
		})
	}
}

func TestUnitSummary_CoverageShort(t *testing.T) {
	assert.True(t, UnitSummary{RequestedDays: 16, ActualDays: 10}.CoverageShort())
	assert.False(t, UnitSummary{RequestedDays: 7, ActualDays: 7}.CoverageShort())
}
