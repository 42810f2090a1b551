package battlebot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantLimiterDisabled(t *testing.T) {
	var l *participantLimiter = newParticipantLimiter(RateLimitConfig{}, nil)
	require.Nil(t, l)
	allowed, notify := l.Allow("42")
	require.True(t, allowed)
	require.False(t, notify)
}

func TestParticipantLimiterStreaks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newParticipantLimiter(RateLimitConfig{EventsPerMinute: 60, Burst: 2}, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		allowed, _ := l.Allow("42")
		require.True(t, allowed)
	}
	allowed, notify := l.Allow("42")
	require.False(t, allowed)
	require.True(t, notify)
	allowed, notify = l.Allow("42")
	require.False(t, allowed)
	require.False(t, notify)

	// One event per second refills a token and ends the streak.
	now = now.Add(time.Second)
	allowed, _ = l.Allow("42")
	require.True(t, allowed)
	allowed, notify = l.Allow("42")
	require.False(t, allowed)
	require.True(t, notify)
}

func TestParticipantLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newParticipantLimiter(RateLimitConfig{EventsPerMinute: 60, Burst: 1}, func() time.Time { return now })

	l.Allow("42")
	l.Allow("43")
	require.Len(t, l.visitors, 2)

	now = now.Add(visitorIdleTTL + time.Second)
	l.Allow("44")
	require.Len(t, l.visitors, 1)
	require.Contains(t, l.visitors, "44")
}
