package job

import (
	"errors"
	"time"
)

// ErrInvalidDefaultTimeout indicates the configured default job timeout is not positive.
var ErrInvalidDefaultTimeout = errors.New("default job timeout must be positive")

// TimeoutSource identifies how a job's execution timeout was resolved.
type TimeoutSource string

const (
	// TimeoutSourceExplicit indicates the job carried its own positive timeout.
	TimeoutSourceExplicit TimeoutSource = "explicit"
	// TimeoutSourceDefault indicates the default timeout was used.
	TimeoutSourceDefault TimeoutSource = "default"
	// TimeoutSourceClamped indicates the requested timeout exceeded the ceiling.
	TimeoutSourceClamped TimeoutSource = "clamped"
)

// TimeoutPolicy resolves the execution timeout applied to a claimed job.
type TimeoutPolicy struct {
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// NewTimeoutPolicy constructs a TimeoutPolicy. A non-positive maxTimeout disables the ceiling.
func NewTimeoutPolicy(defaultTimeout, maxTimeout time.Duration) (*TimeoutPolicy, error) {
	if defaultTimeout <= 0 {
		return nil, ErrInvalidDefaultTimeout
	}
	if maxTimeout > 0 && maxTimeout < defaultTimeout {
		maxTimeout = defaultTimeout
	}
	return &TimeoutPolicy{defaultTimeout: defaultTimeout, maxTimeout: maxTimeout}, nil
}

// Default returns the timeout applied to jobs created without one.
func (p *TimeoutPolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultTimeout
}

// TimeoutDecision captures the outcome of resolving a job timeout.
type TimeoutDecision struct {
	Timeout   time.Duration
	Source    TimeoutSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default timeout.
func (d TimeoutDecision) UsedDefault() bool {
	return d.Source == TimeoutSourceDefault
}

// Clamped reports whether the requested timeout was cut to the ceiling.
func (d TimeoutDecision) Clamped() bool {
	return d.Source == TimeoutSourceClamped
}

// Resolve returns the timeout for a job that requested the given duration. Zero or negative
// requests use the default.
func (p *TimeoutPolicy) Resolve(request time.Duration) TimeoutDecision {
	decision := TimeoutDecision{Requested: request}
	if p == nil {
		decision.Source = TimeoutSourceDefault
		return decision
	}

	switch {
	case request <= 0:
		decision.Timeout = p.defaultTimeout
		decision.Source = TimeoutSourceDefault
	case p.maxTimeout > 0 && request > p.maxTimeout:
		decision.Timeout = p.maxTimeout
		decision.Source = TimeoutSourceClamped
	default:
		decision.Timeout = request
		decision.Source = TimeoutSourceExplicit
	}
	return decision
}
