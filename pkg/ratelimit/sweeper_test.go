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

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	_, err := NewSweeper(NewMemoryStore(), "whenever", nil, nil)
	assert.Error(t, err)
}

func TestSweeper_RunRemovesExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	store := NewMemoryStore(WithClock(func() time.Time { return past }))
	_, err := store.Hit(context.Background(), "b", "k", 1, time.Minute)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s, err := NewSweeper(store, "@every 1h", nil, metrics)
	require.NoError(t, err)

	s.run()

	assert.Equal(t, 0, store.Len("b"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateWindowsSwept))
}

func TestSweeper_StartStop(t *testing.T) {
	s, err := NewSweeper(NewMemoryStore(), "@every 1h", nil, nil)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
