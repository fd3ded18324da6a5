package observability

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsHooksInOrder(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)

	var order []string
	sm.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	sm.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)

	boom := errors.New("boom")
	ran := false
	sm.Register("failing", func(ctx context.Context) error { return boom })
	sm.Register("after", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "hooks after a failure still run")
}

func TestShutdownManager_WaitAndShutdown(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(nil, server, time.Second)

	closed := make(chan struct{})
	sm.Register("close", func(ctx context.Context) error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitAndShutdown(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAndShutdown did not return")
	}
	<-closed
}
