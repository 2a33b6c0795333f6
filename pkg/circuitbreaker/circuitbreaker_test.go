package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		MaxRequestsHalfOpen: 1,
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	// Open circuit rejects without invoking fn.
	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestsHalfOpen = 2
	cb := New(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	// Two successful probes close the circuit.
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("down") })
	}
	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ContextError(t *testing.T) {
	cb := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	// Cancelled executions do not count as failures.
	assert.Equal(t, StateClosed, cb.State())
}
