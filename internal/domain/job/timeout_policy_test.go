package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeoutPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewTimeoutPolicy(10*time.Second, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, policy.Default())
	})

	t.Run("invalid default timeout", func(t *testing.T) {
		policy, err := NewTimeoutPolicy(0, time.Minute)
		require.ErrorIs(t, err, ErrInvalidDefaultTimeout)
		assert.Nil(t, policy)
	})
}

func TestTimeoutPolicy_Resolve(t *testing.T) {
	policy, err := NewTimeoutPolicy(10*time.Second, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		request time.Duration
		want    time.Duration
		source  TimeoutSource
	}{
		{name: "explicit", request: 2500 * time.Millisecond, want: 2500 * time.Millisecond, source: TimeoutSourceExplicit},
		{name: "zero uses default", request: 0, want: 10 * time.Second, source: TimeoutSourceDefault},
		{name: "negative uses default", request: -time.Second, want: 10 * time.Second, source: TimeoutSourceDefault},
		{name: "above ceiling clamps", request: 5 * time.Minute, want: time.Minute, source: TimeoutSourceClamped},
		{name: "at ceiling", request: time.Minute, want: time.Minute, source: TimeoutSourceExplicit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Resolve(tt.request)
			assert.Equal(t, tt.want, d.Timeout)
			assert.Equal(t, tt.source, d.Source)
			assert.Equal(t, tt.request, d.Requested)
			assert.Equal(t, tt.source == TimeoutSourceDefault, d.UsedDefault())
			assert.Equal(t, tt.source == TimeoutSourceClamped, d.Clamped())
		})
	}

	t.Run("no ceiling", func(t *testing.T) {
		unbounded, err := NewTimeoutPolicy(time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, unbounded.Resolve(time.Hour).Timeout)
	})

	t.Run("nil policy", func(t *testing.T) {
		var p *TimeoutPolicy
		assert.True(t, p.Resolve(time.Second).UsedDefault())
	})
}
