package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := newRateLimiter(2, time.Hour)
	require.True(t, rl.allow())
	require.True(t, rl.allow())
	require.False(t, rl.allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Minute)
	for range 100 {
		require.True(t, rl.allow())
	}
}

func TestRateLimiterResets(t *testing.T) {
	rl := newRateLimiter(1, 20*time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	rl.startReset(stop)

	require.True(t, rl.allow())
	require.False(t, rl.allow())
	require.Eventually(t, rl.allow, time.Second, 10*time.Millisecond)
}
