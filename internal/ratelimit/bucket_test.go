package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(perMinute, perHour, perDay int) (*TokenBucket, *fakeClock) {
	fc := &fakeClock{t: time.Date(2026, 2, 24, 9, 0, 0, 0, time.UTC)}
	tb := NewTokenBucket(perMinute, perHour, perDay)
	tb.now = fc.now
	tb.sleep = fc.sleep
	for i := range tb.buckets {
		tb.buckets[i].lastFill = fc.t
	}
	return tb, fc
}

func TestAcquireImmediateWhenFull(t *testing.T) {
	tb, fc := newTestBucket(60, 1000, 10000)
	require.NoError(t, tb.Acquire(context.Background(), 10))
	assert.Empty(t, fc.slept)
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	tb, fc := newTestBucket(60, 10000, 100000)
	ctx := context.Background()

	// Drain the minute bucket.
	require.NoError(t, tb.Acquire(ctx, 60))
	// Next acquire must wait for refill at 1 token/sec.
	require.NoError(t, tb.Acquire(ctx, 10))

	require.NotEmpty(t, fc.slept)
	var total time.Duration
	for _, d := range fc.slept {
		total += d
	}
	assert.GreaterOrEqual(t, total, 9*time.Second)
}

func TestAcquireDecrementsAllHorizons(t *testing.T) {
	tb, _ := newTestBucket(100, 200, 300)
	require.NoError(t, tb.Acquire(context.Background(), 50))
	tb.mu.Lock()
	defer tb.mu.Unlock()
	assert.InDelta(t, 50, tb.buckets[0].tokens, 0.01)
	assert.InDelta(t, 150, tb.buckets[1].tokens, 0.01)
	assert.InDelta(t, 250, tb.buckets[2].tokens, 0.01)
}

func TestAcquireOverCapacityErrors(t *testing.T) {
	tb, _ := newTestBucket(10, 100, 1000)
	err := tb.Acquire(context.Background(), 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds bucket capacity")
}

func TestAcquireConcurrentNoOverdraw(t *testing.T) {
	tb := NewTokenBucket(1000, 100000, 1000000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, tb.Acquire(ctx, 10))
		}()
	}
	wg.Wait()

	tb.mu.Lock()
	defer tb.mu.Unlock()
	// 200 tokens drawn; refill may add a little back but never overdraw.
	assert.GreaterOrEqual(t, tb.buckets[0].tokens, 799.0)
	assert.LessOrEqual(t, tb.buckets[0].tokens, 801.0)
}
