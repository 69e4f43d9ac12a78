// Package ratelimit enforces politeness toward vendor sites. The Pacer
// spaces outbound requests per vendor; the TokenBucket limits aggregate
// LLM API spend for the external processor.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/civiclight/civiclight/internal/civic"
)

// Minimum spacing between requests to the same vendor. Unknown vendors
// get the conservative default.
var vendorDelays = map[civic.Vendor]time.Duration{
	civic.VendorPrimeGov:    3 * time.Second,
	civic.VendorCivicClerk:  3 * time.Second,
	civic.VendorLegistar:    3 * time.Second,
	civic.VendorGranicus:    4 * time.Second,
	civic.VendorCivicPlus:   4 * time.Second,
	civic.VendorNovusAgenda: 4 * time.Second,
}

const defaultDelay = 5 * time.Second

// MinDelay returns the configured spacing for a vendor.
func MinDelay(vendor civic.Vendor) time.Duration {
	if d, ok := vendorDelays[vendor]; ok {
		return d
	}
	return defaultDelay
}

type vendorClock struct {
	mu   sync.Mutex
	last time.Time
}

// Pacer serializes callers per vendor and guarantees a minimum delay plus
// up to one second of jitter between consecutive requests. Idle periods
// do not accrue credit: the first request after a long pause proceeds
// immediately, the second waits the full spacing.
type Pacer struct {
	mu     sync.Mutex
	clocks map[civic.Vendor]*vendorClock

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewPacer creates a pacer with real clocks.
func NewPacer() *Pacer {
	return &Pacer{
		clocks: make(map[civic.Vendor]*vendorClock),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pacer) clock(vendor civic.Vendor) *vendorClock {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clocks[vendor]
	if !ok {
		c = &vendorClock{}
		p.clocks[vendor] = c
	}
	return c
}

// Wait blocks until the vendor's spacing has elapsed since the previous
// request, then records the new request time. Concurrent callers for the
// same vendor are serialized; different vendors never block each other.
func (p *Pacer) Wait(ctx context.Context, vendor civic.Vendor) error {
	c := p.clock(vendor)
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() {
		need := MinDelay(vendor) + time.Duration(rand.Int63n(int64(time.Second)))
		elapsed := p.now().Sub(c.last)
		if wait := need - elapsed; wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.last = p.now()
	return nil
}
