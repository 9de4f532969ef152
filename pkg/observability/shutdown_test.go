package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"with custom timeout", 10 * time.Second, 10 * time.Second},
		{"with zero timeout uses default", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			server := &http.Server{}

			sm := NewShutdownManager(logger, server, tt.timeout)

			require.NotNil(t, sm)
			assert.Same(t, logger, sm.logger)
			assert.Same(t, server, sm.server)
			assert.Equal(t, tt.expectedTimeout, sm.shutdownTimeout)
			assert.Empty(t, sm.shutdownFuncs)
		})
	}
}

func TestNewShutdownManager_NilLogger(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)

	assert.NotNil(t, sm.logger)
	assert.NoError(t, sm.Shutdown())
}

func TestShutdown_RunsFunctionsInOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	var order []string
	for _, name := range []string{"publishers", "engine", "otel"} {
		name := name
		sm.RegisterShutdownFunc(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"publishers", "engine", "otel"}, order)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	errEngine := errors.New("engine close failed")
	ran := false
	sm.RegisterShutdownFunc("engine", func(ctx context.Context) error { return errEngine })
	sm.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errEngine)
	assert.True(t, ran, "later functions still run after an error")
}

func TestShutdown_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, 20*time.Millisecond)

	ran := false
	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sm.RegisterShutdownFunc("after", func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestWaitForShutdown_ContextDone(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), nil, time.Second)

	called := false
	sm.RegisterShutdownFunc("engine", func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called)
	assert.Contains(t, buf.String(), "Graceful shutdown complete")
}
