package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("server error: 503")
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return Retryable(transient)
	})
	assert.ErrorIs(t, err, transient)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCanceledReturnsLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := errors.New("timeout")
	calls := 0
	err := Do(ctx, Config{MaxAttempts: 0, InitialWait: time.Hour, Multiplier: 1}, func() error {
		calls++
		cancel()
		return Retryable(transient)
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 1, calls)
}

func TestDo_AlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(3), func() error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("flaky"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("ls: %w", Retryable(errors.New("eof")))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.NoError(t, Retryable(nil))
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, cfg.Backoff(4))
	assert.Equal(t, time.Second, cfg.Backoff(10))

	cfg.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := cfg.Backoff(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
