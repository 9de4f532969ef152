package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresAfterTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	s := NewScheduler(50*time.Millisecond, clock)

	var fired atomic.Bool
	s.Schedule(func() { fired.Store(true) })
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(49 * time.Millisecond)
	assert.False(t, fired.Load())

	clock.Advance(time.Millisecond)
	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestScheduler_NiceShortensDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	s := NewScheduler(50*time.Millisecond, clock)

	var fired atomic.Bool
	s.ScheduleNice(func() { fired.Store(true) }, -30*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(20 * time.Millisecond)
	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestScheduler_StopCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	s := NewScheduler(10*time.Millisecond, clock)

	var fired atomic.Bool
	timer := s.Schedule(func() { fired.Store(true) })
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.True(t, timer.Stop())

	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestScheduler_DisabledTimeout(t *testing.T) {
	s := NewScheduler(0, nil)
	assert.Equal(t, time.Duration(0), s.Timeout())

	timer := s.Schedule(func() { t.Fatal("disabled scheduler must not fire") })
	assert.True(t, timer.Stop())

	s.SetTimeout(-time.Second)
	assert.Equal(t, time.Duration(0), s.Timeout())

	s.SetTimeout(time.Second)
	assert.Equal(t, time.Second, s.Timeout())
}

func TestNullScheduler(t *testing.T) {
	assert.Equal(t, time.Duration(0), NullScheduler.Timeout())
	assert.True(t, NullScheduler.Schedule(func() {}).Stop())
	assert.True(t, NullScheduler.ScheduleNice(func() {}, time.Hour).Stop())
	assert.NotNil(t, NullScheduler.Clock())
}
