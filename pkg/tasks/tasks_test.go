package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAfter_Fires(t *testing.T) {
	var fired atomic.Bool
	task := After(context.Background(), 5*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})

	task.Wait()
	assert.True(t, fired.Load())
	assert.True(t, task.Fired())
}

func TestAfter_CancelBeforeFire(t *testing.T) {
	var fired atomic.Bool
	task := After(context.Background(), 200*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})

	task.Cancel()
	assert.False(t, fired.Load())
	assert.False(t, task.Fired())

	// Cancelling again must not panic or block.
	task.Cancel()
}

func TestAfter_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Bool
	task := After(ctx, 200*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})

	cancel()
	task.Wait()
	assert.False(t, fired.Load())
}

func TestEvery_TicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	task := Every(context.Background(), 5*time.Millisecond, func(ctx context.Context, tick int) {
		ticks.Store(int32(tick))
	})

	time.Sleep(40 * time.Millisecond)
	task.Cancel()

	got := ticks.Load()
	assert.Greater(t, got, int32(1))

	// No further ticks after cancel.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, got, ticks.Load())
}
