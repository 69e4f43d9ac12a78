package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/vendors"
)

// fakeVendor is a registry tag reserved for these tests.
const fakeVendor civic.Vendor = "faketest"

type fakeAdapter struct {
	meetings []civic.Meeting
	err      error
}

func (a *fakeAdapter) Vendor() civic.Vendor { return fakeVendor }
func (a *fakeAdapter) FetchMeetings(context.Context, vendors.Window) ([]civic.Meeting, error) {
	return a.meetings, a.err
}

type fakeCityStore struct {
	cities []civic.City
	recent map[string]int
	synced map[string]time.Time
}

func (s *fakeCityStore) ActiveCities(context.Context) ([]civic.City, error) { return s.cities, nil }
func (s *fakeCityStore) RecentMeetingCount(_ context.Context, banana string, _ int) (int, error) {
	return s.recent[banana], nil
}
func (s *fakeCityStore) MarkCitySynced(_ context.Context, banana string, at time.Time) error {
	if s.synced == nil {
		s.synced = map[string]time.Time{}
	}
	s.synced[banana] = at
	return nil
}

type fakeSink struct {
	calls []string
	err   error
}

func (s *fakeSink) SyncMeeting(_ context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error) {
	s.calls = append(s.calls, city.Banana+"/"+dto.VendorID)
	return civic.StoreStats{}, s.err
}

func newTestFetcher(t *testing.T, store *fakeCityStore, sink *fakeSink, current *fakeAdapter) *Fetcher {
	t.Helper()
	vendors.Register(fakeVendor, func(civic.City, *vendors.Deps) (vendors.Adapter, error) {
		return current, nil
	})
	f := New(store, sink, &vendors.Deps{Log: zap.NewNop()}, nil, zap.NewNop(), Options{})
	f.sleep = func(context.Context, time.Duration) {}
	return f
}

func soon() time.Time { return time.Now().Add(24 * time.Hour) }

func TestSyncAllProcessesAllMeetings(t *testing.T) {
	store := &fakeCityStore{
		cities: []civic.City{
			{Banana: "alphaCA", Vendor: fakeVendor, Status: civic.CityActive},
			{Banana: "betaCA", Vendor: fakeVendor, Status: civic.CityActive},
		},
		recent: map[string]int{},
	}
	sink := &fakeSink{}
	adapter := &fakeAdapter{meetings: []civic.Meeting{
		{VendorID: "1", Title: "Council", Start: soon()},
		{VendorID: "2", Title: "Planning", Start: soon()},
	}}
	f := newTestFetcher(t, store, sink, adapter)

	results, err := f.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, civic.SyncCompleted, r.Status)
		assert.Equal(t, 2, r.MeetingsFound)
		assert.Equal(t, 2, r.MeetingsProcessed)
	}
	assert.Len(t, sink.calls, 4)
	assert.Len(t, store.synced, 2)
	assert.Empty(t, f.FailedCities())
}

func TestSyncAllRecordsFailures(t *testing.T) {
	store := &fakeCityStore{
		cities: []civic.City{{Banana: "gammaTX", Vendor: fakeVendor, Status: civic.CityActive}},
		recent: map[string]int{},
	}
	sink := &fakeSink{}
	adapter := &fakeAdapter{err: errors.New("upstream down")}
	f := newTestFetcher(t, store, sink, adapter)
	f.opts.MaxRetries = 0

	results, err := f.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, civic.SyncFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "upstream down")
	assert.Equal(t, []string{"gammaTX"}, f.FailedCities())
	assert.Empty(t, store.synced, "failed city keeps its stale last_synced")
}

func TestSyncAllSkipsDisabledVendors(t *testing.T) {
	store := &fakeCityStore{
		cities: []civic.City{{Banana: "deltaWA", Vendor: fakeVendor, Status: civic.CityActive}},
		recent: map[string]int{},
	}
	sink := &fakeSink{}
	f := newTestFetcher(t, store, sink, &fakeAdapter{})
	f.opts.Enabled = map[civic.Vendor]bool{civic.VendorLegistar: true}

	results, err := f.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, sink.calls)
}

func TestSyncCitySkippedWhenFresh(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	city := civic.City{Banana: "epsOR", Vendor: fakeVendor, LastSynced: &recent}
	store := &fakeCityStore{recent: map[string]int{"epsOR": 0}}
	f := newTestFetcher(t, store, &fakeSink{}, &fakeAdapter{})

	res := f.syncCity(context.Background(), city, false)
	assert.Equal(t, civic.SyncSkipped, res.Status)

	res = f.syncCity(context.Background(), city, true)
	assert.Equal(t, civic.SyncCompleted, res.Status, "force bypasses cadence")
}

func TestStopHaltsPass(t *testing.T) {
	store := &fakeCityStore{
		cities: []civic.City{
			{Banana: "aCA", Vendor: fakeVendor},
			{Banana: "bCA", Vendor: fakeVendor},
		},
		recent: map[string]int{},
	}
	sink := &fakeSink{}
	adapter := &fakeAdapter{meetings: []civic.Meeting{{VendorID: "1", Title: "X", Start: soon()}}}
	f := newTestFetcher(t, store, sink, adapter)

	// Stop after the first city by hijacking the sink.
	sink.err = nil
	first := true
	f.sleep = func(context.Context, time.Duration) {}
	origSink := f.sink
	f.sink = sinkFunc(func(ctx context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error) {
		if first {
			first = false
			f.Stop()
		}
		return origSink.SyncMeeting(ctx, city, dto)
	})

	results, err := f.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1, "second city not reached after Stop")
}

type sinkFunc func(ctx context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error)

func (f sinkFunc) SyncMeeting(ctx context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error) {
	return f(ctx, city, dto)
}

func TestPriorityScore(t *testing.T) {
	now := time.Now()
	old := now.Add(-30 * 24 * time.Hour)
	fresh := now.Add(-time.Hour)

	assert.Equal(t, neverSyncedScore, priorityScore(5, nil, now))
	assert.Greater(t, priorityScore(8, &fresh, now), priorityScore(1, &fresh, now))

	// Staleness contribution caps at 10.
	assert.InDelta(t, 10.0, priorityScore(0, &old, now), 0.01)
}

func TestRetryScheduleDelays(t *testing.T) {
	s := newRetrySchedule(3)

	// 5s then 20s, each within ±2s of jitter.
	d := s.NextBackOff()
	assert.GreaterOrEqual(t, d, 3*time.Second)
	assert.LessOrEqual(t, d, 7*time.Second)
	for i := 0; i < 2; i++ {
		d = s.NextBackOff()
		assert.GreaterOrEqual(t, d, 18*time.Second)
		assert.LessOrEqual(t, d, 22*time.Second)
	}
	assert.Equal(t, backoff.Stop, s.NextBackOff(), "exhausted after the retry budget")

	s.Reset()
	d = s.NextBackOff()
	assert.LessOrEqual(t, d, 7*time.Second, "reset starts the schedule over")
}

func TestSyncIntervalByFrequency(t *testing.T) {
	assert.Equal(t, 12*time.Hour, syncInterval(9))
	assert.Equal(t, 24*time.Hour, syncInterval(4))
	assert.Equal(t, 72*time.Hour, syncInterval(1))
	assert.Equal(t, 168*time.Hour, syncInterval(0))
}
