package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(cfg Config) *Breaker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New("test", cfg, logger)
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 3, ResetTimeout: time.Minute})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), failing)
		require.Error(t, err)
		assert.False(t, IsOpen(err))
	}
	assert.Equal(t, StateOpen, b.CurrentState())

	err := b.Execute(context.Background(), failing)
	require.Error(t, err)
	assert.True(t, IsOpen(err))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 2, ResetTimeout: time.Minute})

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") }))

	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenSuccesses: 2})

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") }))
	assert.Equal(t, StateOpen, b.CurrentState())

	time.Sleep(20 * time.Millisecond)

	ok := func(ctx context.Context) error { return nil }
	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateHalfOpen, b.CurrentState())
	require.NoError(t, b.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("boom") }))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("still broken") }))
	assert.Equal(t, StateOpen, b.CurrentState())

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.True(t, IsOpen(err))
}

func TestOpenErrorMessage(t *testing.T) {
	err := &OpenError{Name: "ai_agent"}
	assert.Contains(t, err.Error(), "ai_agent")
	assert.True(t, IsOpen(err))
	assert.False(t, IsOpen(errors.New("other")))
}
