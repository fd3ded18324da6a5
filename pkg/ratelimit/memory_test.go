package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicequote/meterd/pkg/observability"
)

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	_, err := s.Hit(ctx, "b", "short", 5, time.Minute)
	require.NoError(t, err)
	_, err = s.Hit(ctx, "b", "long", 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len("b"))

	assert.Equal(t, 0, s.Sweep(clock.Now()))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.Sweep(clock.Now()))
	assert.Equal(t, 1, s.Len("b"))
	assert.Equal(t, 0, s.Len("missing"))
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(WithMaxKeys(2))
	ctx := context.Background()

	_, _ = s.Hit(ctx, "b", "a", 1, time.Hour)
	_, _ = s.Hit(ctx, "b", "b", 1, time.Hour)
	_, _ = s.Hit(ctx, "b", "c", 1, time.Hour)
	assert.Equal(t, 2, s.Len("b"))

	// "a" was evicted, so it gets a fresh window.
	d, err := s.Hit(ctx, "b", "a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// "c" is still tracked.
	d, err = s.Hit(ctx, "b", "c", 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestMemoryStore_CountsLiveEvictions(t *testing.T) {
	clock := newFakeClock()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := NewMemoryStore(WithMaxKeys(1), WithClock(clock.Now), WithMetrics(metrics))
	ctx := context.Background()
	evicted := func() float64 { return testutil.ToFloat64(metrics.LiveWindowsEvicted.WithLabelValues("b")) }

	d, err := s.Hit(ctx, "b", "a", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = s.Hit(ctx, "b", "a", 1, time.Hour)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// A full bucket drops a's live window, so a is let through early.
	_, err = s.Hit(ctx, "b", "other", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1.0, evicted())

	d, err = s.Hit(ctx, "b", "a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2.0, evicted())

	// Dropping an expired window is not counted.
	clock.Advance(time.Hour)
	_, err = s.Hit(ctx, "b", "late", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2.0, evicted())
}
