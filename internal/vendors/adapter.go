// Package vendors defines the adapter contract shared by every vendor
// integration, the factory registry the fetcher dispatches through, and
// the parsing helpers (dates, statuses, matter files, participation,
// item filtering) the adapters compose.
//
// Vendor packages register themselves at init time:
//
//	func init() {
//		vendors.Register(civic.VendorPrimeGov, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
//			return New(city, deps)
//		})
//	}
//
// and are blank-imported by the fetcher.
package vendors

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/config"
	"github.com/civiclight/civiclight/internal/ratelimit"
	"github.com/civiclight/civiclight/internal/session"
)

// Window is the sync time window relative to now.
type Window struct {
	DaysBack    int
	DaysForward int
}

// DefaultWindow covers two weeks back and ninety days forward.
var DefaultWindow = Window{DaysBack: 14, DaysForward: 90}

// Start returns the inclusive lower bound of the window.
func (w Window) Start(now time.Time) time.Time {
	return now.AddDate(0, 0, -w.DaysBack).Truncate(24 * time.Hour)
}

// End returns the inclusive upper bound of the window.
func (w Window) End(now time.Time) time.Time {
	return now.AddDate(0, 0, w.DaysForward).Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(now, t time.Time) bool {
	return !t.Before(w.Start(now)) && !t.After(w.End(now))
}

// Adapter is the per-vendor capability: translate one city's upstream
// format into normalized meeting records for a time window.
//
// Implementations own their discovery and parsing strategy but must not
// propagate per-meeting failures: log, skip, and return what parsed.
type Adapter interface {
	// Vendor returns the adapter's vendor tag.
	Vendor() civic.Vendor

	// FetchMeetings returns normalized meetings within the window.
	FetchMeetings(ctx context.Context, window Window) ([]civic.Meeting, error)
}

// Deps carries the process-wide services adapters are constructed with.
// Nothing here is looked up from package scope.
type Deps struct {
	Sessions *session.Pool
	Pacer    *ratelimit.Pacer
	Log      *zap.Logger

	// Static vendor configuration (loaded from the data dir).
	GranicusViewIDs config.GranicusViewIDs
	OnBaseSites     config.OnBaseSites
	CivicEngage     config.CivicEngageOverrides

	// LegistarTokens maps city slug to an API token where required.
	LegistarTokens map[string]string

	// Discovery caches working base URLs for domain-probing vendors.
	Discovery *DiscoveryCache

	// DetailConcurrency bounds per-meeting detail-page fan-out.
	DetailConcurrency int64
}

// Concurrency returns the detail fan-out bound, defaulting to 5.
func (d *Deps) Concurrency() int64 {
	if d.DetailConcurrency <= 0 {
		return 5
	}
	return d.DetailConcurrency
}

// Factory builds an adapter for one city. Construction validates
// configuration (missing view ids, unconfigured sites) and fails fast;
// fetch-time problems are runtime errors instead.
type Factory func(city civic.City, deps *Deps) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[civic.Vendor]Factory{}
)

// Register adds a vendor factory. Called from vendor package init().
func Register(vendor civic.Vendor, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[vendor] = f
}

// Registered returns the sorted list of vendors with adapters.
func Registered() []civic.Vendor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]civic.Vendor, 0, len(registry))
	for v := range registry {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New constructs the adapter for a city's vendor.
func New(city civic.City, deps *Deps) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[city.Vendor]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vendors: no adapter registered for %q", city.Vendor)
	}
	return f(city, deps)
}

// Fetch is the safety net around Adapter.FetchMeetings: panics become
// errors, invalid meetings are dropped with a warning, meetings outside
// the window are discarded, and item filtering plus status normalization
// are applied uniformly. The returned error is the fetcher's retry
// signal; it is never raised past that layer.
func Fetch(ctx context.Context, a Adapter, city civic.City, window Window, log *zap.Logger) ([]civic.Meeting, error) {
	meetings, err := safeFetch(ctx, a, window)
	if err != nil {
		log.Error("adapter fetch failed",
			zap.String("vendor", string(a.Vendor())),
			zap.String("banana", city.Banana),
			zap.Error(err))
		return nil, err
	}
	now := time.Now()

	out := meetings[:0]
	for _, m := range meetings {
		if m.VendorID == "" || m.Title == "" || m.Start.IsZero() {
			log.Warn("dropping invalid meeting",
				zap.String("banana", city.Banana),
				zap.String("vendor_id", m.VendorID),
				zap.String("title", m.Title))
			continue
		}
		if !window.Contains(now, m.Start) {
			continue
		}
		if m.Status == "" {
			m.Status = ParseMeetingStatus(m.Title)
		}
		m.Items = FilterItems(m.Items, log)
		out = append(out, m)
	}
	return out, nil
}

func safeFetch(ctx context.Context, a Adapter, window Window) (meetings []civic.Meeting, err error) {
	defer func() {
		if r := recover(); r != nil {
			meetings = nil
			err = fmt.Errorf("vendors: adapter %s panicked: %v", a.Vendor(), r)
		}
	}()
	return a.FetchMeetings(ctx, window)
}
