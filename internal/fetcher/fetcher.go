// Package fetcher drives one sync pass across all active cities:
// vendor-partitioned scheduling, priority ordering, should-sync
// cadence, paced adapter invocation with retries, and per-city result
// accounting.
package fetcher

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/ratelimit"
	"github.com/civiclight/civiclight/internal/telemetry"
	"github.com/civiclight/civiclight/internal/vendors"
)

// CityStore is the fetcher's read/write surface on city state.
type CityStore interface {
	ActiveCities(ctx context.Context) ([]civic.City, error)
	RecentMeetingCount(ctx context.Context, banana string, days int) (int, error)
	MarkCitySynced(ctx context.Context, banana string, at time.Time) error
}

// MeetingSink persists one adapter DTO; the syncer implements it.
type MeetingSink interface {
	SyncMeeting(ctx context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error)
}

// Options tunes a Fetcher.
type Options struct {
	// Enabled narrows the vendor set at runtime; empty means all.
	Enabled map[civic.Vendor]bool

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Window overrides the sync window; zero value uses the default.
	Window vendors.Window
}

// Fetcher runs sync passes.
type Fetcher struct {
	store CityStore
	sink  MeetingSink
	deps  *vendors.Deps
	pacer *ratelimit.Pacer
	log   *zap.Logger
	opts  Options

	running atomic.Bool

	mu         sync.Mutex
	failed     map[string]string // banana -> error
	lastStatus map[string]civic.SyncResult

	// test seams
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

// New builds a Fetcher.
func New(store CityStore, sink MeetingSink, deps *vendors.Deps, pacer *ratelimit.Pacer, log *zap.Logger, opts Options) *Fetcher {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Window == (vendors.Window{}) {
		opts.Window = vendors.DefaultWindow
	}
	return &Fetcher{
		store:      store,
		sink:       sink,
		deps:       deps,
		pacer:      pacer,
		log:        log.Named("fetcher"),
		opts:       opts,
		failed:     map[string]string{},
		lastStatus: map[string]civic.SyncResult{},
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Stop requests a clean exit at the next checkpoint.
func (f *Fetcher) Stop() { f.running.Store(false) }

// Running reports whether a pass is in flight.
func (f *Fetcher) Running() bool { return f.running.Load() }

// SetRunning flips the pass-in-flight flag and returns its previous
// value. One-shot operations raise it around their work so status and
// the concurrent-pass guard see them; SyncAll manages the flag itself.
func (f *Fetcher) SetRunning(v bool) bool { return f.running.Swap(v) }

// FailedCities returns the bananas that failed the last pass.
func (f *Fetcher) FailedCities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.failed))
	for b := range f.failed {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// SyncAll runs one full pass: partition active cities by vendor,
// process each vendor group sequentially in priority order, sleep
// between groups.
func (f *Fetcher) SyncAll(ctx context.Context) ([]civic.SyncResult, error) {
	f.running.Store(true)
	defer f.running.Store(false)

	f.mu.Lock()
	f.failed = map[string]string{}
	f.mu.Unlock()

	cities, err := f.store.ActiveCities(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[civic.Vendor][]civic.City{}
	for _, c := range cities {
		if !f.vendorEnabled(c.Vendor) {
			continue
		}
		groups[c.Vendor] = append(groups[c.Vendor], c)
	}
	order := make([]civic.Vendor, 0, len(groups))
	for v := range groups {
		order = append(order, v)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var results []civic.SyncResult
	for _, vendor := range order {
		if !f.checkpoint(ctx) {
			break
		}
		group := groups[vendor]
		f.sortByPriority(ctx, group)

		processed := 0
		for _, city := range group {
			if !f.checkpoint(ctx) {
				break
			}
			res := f.syncCity(ctx, city, false)
			results = append(results, res)
			f.record(res)
			if res.Status != civic.SyncSkipped {
				processed++
			}
		}
		// Politeness pause after touching a vendor's sites.
		if processed > 0 && f.checkpoint(ctx) {
			f.sleep(ctx, 30*time.Second+time.Duration(rand.Int63n(int64(10*time.Second))))
		}
	}
	return results, nil
}

// SyncCity force-syncs one city, bypassing the should-sync heuristic.
func (f *Fetcher) SyncCity(ctx context.Context, city civic.City) civic.SyncResult {
	res := f.syncCity(ctx, city, true)
	f.record(res)
	return res
}

func (f *Fetcher) vendorEnabled(v civic.Vendor) bool {
	if len(f.opts.Enabled) == 0 {
		return true
	}
	return f.opts.Enabled[v]
}

func (f *Fetcher) checkpoint(ctx context.Context) bool {
	return f.running.Load() && ctx.Err() == nil
}

func (f *Fetcher) record(res civic.SyncResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStatus[res.Banana] = res
	if res.Status == civic.SyncFailed {
		f.failed[res.Banana] = res.Error
	}
}

// syncCity applies cadence, paces the vendor, fetches with retries, and
// hands each meeting to the sink.
func (f *Fetcher) syncCity(ctx context.Context, city civic.City, force bool) civic.SyncResult {
	started := f.now()
	res := civic.SyncResult{Banana: city.Banana, Status: civic.SyncCompleted}

	if !force {
		due, err := f.shouldSync(ctx, city)
		if err != nil {
			f.log.Warn("should-sync check failed; syncing anyway",
				zap.String("banana", city.Banana), zap.Error(err))
		} else if !due {
			res.Status = civic.SyncSkipped
			res.Duration = f.now().Sub(started)
			return res
		}
	}

	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, city.Vendor); err != nil {
			res.Status = civic.SyncFailed
			res.Error = err.Error()
			return res
		}
	}

	meetings, err := f.fetchWithRetry(ctx, city)
	if err != nil {
		telemetry.CountCityFailed(ctx, string(city.Vendor))
		res.Status = civic.SyncFailed
		res.Error = err.Error()
		res.Duration = f.now().Sub(started)
		return res
	}
	res.MeetingsFound = len(meetings)

	for _, dto := range meetings {
		stats, err := f.sink.SyncMeeting(ctx, city, dto)
		if err != nil {
			// Per-meeting failures do not fail the city.
			f.log.Error("meeting sync failed",
				zap.String("banana", city.Banana),
				zap.String("vendor_id", dto.VendorID),
				zap.Error(err))
			continue
		}
		res.MeetingsProcessed++
		res.MeetingsSkipped += stats.MeetingsSkipped
	}

	if err := f.store.MarkCitySynced(ctx, city.Banana, f.now()); err != nil {
		f.log.Warn("mark synced failed", zap.String("banana", city.Banana), zap.Error(err))
	}
	res.Duration = f.now().Sub(started)
	telemetry.RecordSyncDuration(ctx, string(city.Vendor), res.Duration.Seconds())
	return res
}

// retrySchedule is the retry policy for one city: a 5s delay before the
// first retry, 20s before each later one, each with up to ±2s of
// jitter.
type retrySchedule struct {
	retries   int
	remaining int
	next      time.Duration
}

func newRetrySchedule(retries int) *retrySchedule {
	s := &retrySchedule{retries: retries}
	s.Reset()
	return s
}

func (s *retrySchedule) Reset() {
	s.remaining = s.retries
	s.next = 5 * time.Second
}

func (s *retrySchedule) NextBackOff() time.Duration {
	if s.remaining <= 0 {
		return backoff.Stop
	}
	s.remaining--
	d := s.next
	s.next = 20 * time.Second
	return d + time.Duration(rand.Int63n(int64(4*time.Second))) - 2*time.Second
}

// fetchWithRetry constructs the adapter fresh per attempt and retries
// on error per the schedule.
func (f *Fetcher) fetchWithRetry(ctx context.Context, city civic.City) ([]civic.Meeting, error) {
	var meetings []civic.Meeting
	op := func() error {
		a, err := vendors.New(city, f.deps)
		if err != nil {
			// Construction failures are configuration errors; retrying
			// cannot fix them.
			return backoff.Permanent(err)
		}
		meetings, err = vendors.Fetch(ctx, a, city, f.opts.Window, f.log)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(newRetrySchedule(f.opts.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return meetings, nil
}
