package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket limits token consumption across three rolling horizons
// (minute, hour, day). Buckets refill continuously; Acquire blocks for
// the longest wait any horizon requires, then decrements all three
// atomically. Used by the external summarization processor for LLM
// API budgeting.
type TokenBucket struct {
	mu      sync.Mutex
	buckets [3]bucket

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type bucket struct {
	capacity float64
	tokens   float64
	// refill rate in tokens per second
	rate     float64
	lastFill time.Time
}

// NewTokenBucket creates a limiter with per-minute, per-hour and per-day
// capacities. All buckets start full.
func NewTokenBucket(perMinute, perHour, perDay int) *TokenBucket {
	now := time.Now()
	tb := &TokenBucket{
		now:   time.Now,
		sleep: sleepCtx,
	}
	tb.buckets = [3]bucket{
		{capacity: float64(perMinute), tokens: float64(perMinute), rate: float64(perMinute) / 60, lastFill: now},
		{capacity: float64(perHour), tokens: float64(perHour), rate: float64(perHour) / 3600, lastFill: now},
		{capacity: float64(perDay), tokens: float64(perDay), rate: float64(perDay) / 86400, lastFill: now},
	}
	return tb
}

func (b *bucket) fill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastFill = now
}

// waitFor returns how long until n tokens are available.
func (b *bucket) waitFor(n float64) time.Duration {
	deficit := n - b.tokens
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

// Acquire blocks until n tokens are available in every horizon, then
// takes them. n larger than any capacity is an error, not a deadlock.
func (tb *TokenBucket) Acquire(ctx context.Context, n int) error {
	need := float64(n)
	tb.mu.Lock()
	for _, b := range tb.buckets {
		if need > b.capacity {
			tb.mu.Unlock()
			return fmt.Errorf("ratelimit: request of %d tokens exceeds bucket capacity %.0f", n, b.capacity)
		}
	}

	for {
		now := tb.now()
		var longest time.Duration
		for i := range tb.buckets {
			tb.buckets[i].fill(now)
			if w := tb.buckets[i].waitFor(need); w > longest {
				longest = w
			}
		}
		if longest == 0 {
			for i := range tb.buckets {
				tb.buckets[i].tokens -= need
			}
			tb.mu.Unlock()
			return nil
		}
		tb.mu.Unlock()
		if err := tb.sleep(ctx, longest); err != nil {
			return err
		}
		tb.mu.Lock()
	}
}
