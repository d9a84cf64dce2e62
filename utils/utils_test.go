package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepContext(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, SleepContext(ctx, time.Millisecond))

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	t0 := time.Now()
	err := SleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(t0), time.Second)
}

func TestIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.False(t, IsCanceled(ctx))
	cancel()
	assert.True(t, IsCanceled(ctx))
}

func TestTimeDiff(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(1500*time.Millisecond + 400*time.Microsecond)
	assert.Equal(t, 1500*time.Millisecond, TimeDiff(t1, t0))
}
