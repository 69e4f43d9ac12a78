package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclight/civiclight/internal/civic"
)

// fakeClock drives a Pacer deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slept = append(f.slept, d)
	f.t = f.t.Add(d)
	return nil
}

func newTestPacer() (*Pacer, *fakeClock) {
	fc := &fakeClock{t: time.Date(2026, 2, 24, 9, 0, 0, 0, time.UTC)}
	p := NewPacer()
	p.now = fc.now
	p.sleep = fc.sleep
	return p, fc
}

func TestPacerFirstRequestImmediate(t *testing.T) {
	p, fc := newTestPacer()
	require.NoError(t, p.Wait(context.Background(), civic.VendorPrimeGov))
	assert.Empty(t, fc.slept)
}

func TestPacerEnforcesMinimumSpacing(t *testing.T) {
	p, fc := newTestPacer()
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx, civic.VendorPrimeGov))
	require.NoError(t, p.Wait(ctx, civic.VendorPrimeGov))

	require.Len(t, fc.slept, 1)
	// 3 s base for PrimeGov plus up to 1 s jitter.
	assert.GreaterOrEqual(t, fc.slept[0], 3*time.Second)
	assert.Less(t, fc.slept[0], 4*time.Second)
}

func TestPacerUnknownVendorGetsDefault(t *testing.T) {
	p, fc := newTestPacer()
	ctx := context.Background()
	require.NoError(t, p.Wait(ctx, civic.Vendor("somethingnew")))
	require.NoError(t, p.Wait(ctx, civic.Vendor("somethingnew")))
	require.Len(t, fc.slept, 1)
	assert.GreaterOrEqual(t, fc.slept[0], 5*time.Second)
}

func TestPacerVendorsIndependent(t *testing.T) {
	p, fc := newTestPacer()
	ctx := context.Background()
	require.NoError(t, p.Wait(ctx, civic.VendorPrimeGov))
	require.NoError(t, p.Wait(ctx, civic.VendorGranicus))
	assert.Empty(t, fc.slept)
}

func TestPacerConcurrentCallersSpaced(t *testing.T) {
	// Real clock: two concurrent waits on the same vendor must come back
	// at least MinDelay apart.
	p := NewPacer()
	ctx := context.Background()
	vendor := civic.VendorCivicClerk

	times := make(chan time.Time, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, p.Wait(ctx, vendor))
			times <- time.Now()
		}()
	}
	wg.Wait()
	close(times)

	var stamps []time.Time
	for ts := range times {
		stamps = append(stamps, ts)
	}
	require.Len(t, stamps, 2)
	gap := stamps[1].Sub(stamps[0])
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, MinDelay(vendor))
}

func TestPacerHonorsCancellation(t *testing.T) {
	p := NewPacer()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx, civic.VendorGranicus))
	cancel()
	err := p.Wait(ctx, civic.VendorGranicus)
	assert.ErrorIs(t, err, context.Canceled)
}
