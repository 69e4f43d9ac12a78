package vendors

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DiscoveryCache remembers the working base URL per city for vendors
// whose deployments live on unpredictable domains (CivicPlus,
// CivicEngage). Adapter instances are per-sync; the cache is
// process-wide and lives in Deps.
type DiscoveryCache struct {
	mu    sync.Mutex
	bases map[string]string // banana -> base URL
}

// NewDiscoveryCache creates an empty cache.
func NewDiscoveryCache() *DiscoveryCache {
	return &DiscoveryCache{bases: make(map[string]string)}
}

// Lookup returns the cached base URL for a city.
func (d *DiscoveryCache) Lookup(banana string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	base, ok := d.bases[banana]
	return base, ok
}

// Store caches a discovered base URL.
func (d *DiscoveryCache) Store(banana, base string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bases[banana] = base
}

// DiscoverBase probes candidate base URLs in priority order by fetching
// probePath under each and returns the first whose 2xx body satisfies
// looksRight. The result is cached per city.
func (b *Base) DiscoverBase(ctx context.Context, cache *DiscoveryCache, candidates []string, probePath string, looksRight func(body string) bool) (string, error) {
	if base, ok := cache.Lookup(b.City.Banana); ok {
		return base, nil
	}
	for _, base := range candidates {
		raw, err := b.Get(ctx, strings.TrimSuffix(base, "/")+probePath)
		if err != nil {
			continue
		}
		if looksRight(string(raw)) {
			cache.Store(b.City.Banana, base)
			return base, nil
		}
	}
	return "", fmt.Errorf("%s: no working site found for %s among %d candidates", b.City.Vendor, b.City.Banana, len(candidates))
}
