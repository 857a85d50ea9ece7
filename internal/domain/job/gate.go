// Package job contains the in-process coordination primitives of the queue: the dispatch
// rate gate and the waiter bridge that lets enqueuers await asynchronous completion.
package job

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateSource supplies the configured calls-per-minute budget. It is read on every use so
// runtime changes take effect without a restart.
type RateSource interface {
	CallsPerMinute(ctx context.Context) (float64, error)
}

// RateSourceFunc adapts a function to RateSource.
type RateSourceFunc func(ctx context.Context) (float64, error)

// CallsPerMinute implements RateSource.
func (f RateSourceFunc) CallsPerMinute(ctx context.Context) (float64, error) {
	return f(ctx)
}

// IntervalFor converts a calls-per-minute budget to the minimum spacing between dispatches,
// rounded up to the millisecond. Non-positive or non-finite budgets mean no restriction.
func IntervalFor(callsPerMinute float64) time.Duration {
	if callsPerMinute <= 0 || math.IsNaN(callsPerMinute) || math.IsInf(callsPerMinute, 0) {
		return 0
	}
	return time.Duration(math.Ceil(60000/callsPerMinute)) * time.Millisecond
}

// Gate tracks the earliest instant the next external call may be dispatched.
// At most one call is in flight at a time, so a single instant replaces a token bucket.
type Gate struct {
	source RateSource

	mu            sync.Mutex
	nextAllowedAt time.Time
	lastRate      float64
}

// NewGate constructs a Gate with no restriction in effect.
func NewGate(source RateSource) *Gate {
	return &Gate{source: source}
}

// Rate returns the current calls-per-minute budget and its interval. When the source fails,
// the last successfully read budget is used and the error is returned alongside it.
func (g *Gate) Rate(ctx context.Context) (float64, time.Duration, error) {
	if g.source == nil {
		return 0, 0, nil
	}
	cpm, err := g.source.CallsPerMinute(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		return g.lastRate, IntervalFor(g.lastRate), err
	}
	g.lastRate = cpm
	return cpm, IntervalFor(cpm), nil
}

// Interval returns the minimum spacing between dispatches.
func (g *Gate) Interval(ctx context.Context) (time.Duration, error) {
	_, interval, err := g.Rate(ctx)
	return interval, err
}

// IsAllowedNow reports whether a dispatch may happen at now.
func (g *Gate) IsAllowedNow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextAllowedAt.IsZero() || !now.Before(g.nextAllowedAt)
}

// WaitFor returns how long until a dispatch is allowed; zero when allowed now.
func (g *Gate) WaitFor(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextAllowedAt.IsZero() || !now.Before(g.nextAllowedAt) {
		return 0
	}
	return g.nextAllowedAt.Sub(now)
}

// RecordDispatch sets the next allowed instant to now plus the interval, or clears the
// restriction when no interval applies. Returns the interval applied.
func (g *Gate) RecordDispatch(ctx context.Context, now time.Time) time.Duration {
	interval, _ := g.Interval(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if interval <= 0 {
		g.nextAllowedAt = time.Time{}
		return 0
	}
	g.nextAllowedAt = now.Add(interval)
	return interval
}

// NextAllowedAt returns the next allowed dispatch instant, if a restriction is in effect.
func (g *Gate) NextAllowedAt() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextAllowedAt.IsZero() {
		return time.Time{}, false
	}
	return g.nextAllowedAt, true
}
