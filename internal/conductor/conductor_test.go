package conductor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/fetcher"
	"github.com/civiclight/civiclight/internal/storage"
	"github.com/civiclight/civiclight/internal/vendors"
)

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.defaults()
	assert.Equal(t, 7*24*time.Hour, o.SyncInterval)
	assert.Equal(t, 2*24*time.Hour, o.ErrorBackoff)
	assert.Equal(t, 30*time.Second, o.ProcessingInterval)
	assert.Equal(t, 3, o.QueueRetryLimit)
}

func TestOptionsExplicitValuesKept(t *testing.T) {
	o := Options{
		SyncInterval:       time.Hour,
		ErrorBackoff:       time.Minute,
		ProcessingInterval: time.Second,
		QueueRetryLimit:    5,
	}
	o.defaults()
	assert.Equal(t, time.Hour, o.SyncInterval)
	assert.Equal(t, time.Minute, o.ErrorBackoff)
	assert.Equal(t, time.Second, o.ProcessingInterval)
	assert.Equal(t, 5, o.QueueRetryLimit)
}

// loopVendor is a registry tag reserved for these tests.
const loopVendor civic.Vendor = "conductortest"

type loopAdapter struct{}

func (loopAdapter) Vendor() civic.Vendor { return loopVendor }
func (loopAdapter) FetchMeetings(context.Context, vendors.Window) ([]civic.Meeting, error) {
	return nil, nil
}

type cityStoreStub struct{}

func (cityStoreStub) ActiveCities(context.Context) ([]civic.City, error)           { return nil, nil }
func (cityStoreStub) RecentMeetingCount(context.Context, string, int) (int, error) { return 0, nil }
func (cityStoreStub) MarkCitySynced(context.Context, string, time.Time) error      { return nil }

type sinkStub struct{}

func (sinkStub) SyncMeeting(context.Context, civic.City, civic.Meeting) (civic.StoreStats, error) {
	return civic.StoreStats{}, nil
}

// fakeQueue holds one job and applies the retry contract: a failure
// below the limit leaves the job failed and claimable, at the limit it
// goes to dead_letter.
type fakeQueue struct {
	job       *civic.QueueJob
	statuses  []civic.JobStatus
	completed []string
}

func (q *fakeQueue) ClaimNext(ctx context.Context) (civic.QueueJob, error) {
	return q.ClaimNextForCity(ctx, "")
}

func (q *fakeQueue) ClaimNextForCity(context.Context, string) (civic.QueueJob, error) {
	if q.job == nil || (q.job.Status != civic.JobPending && q.job.Status != civic.JobFailed) {
		return civic.QueueJob{}, storage.ErrNotFound
	}
	q.job.Status = civic.JobProcessing
	return *q.job, nil
}

func (q *fakeQueue) CompleteJob(_ context.Context, id string) error {
	q.job.Status = civic.JobCompleted
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) FailJob(_ context.Context, _, _ string, limit int) (civic.JobStatus, error) {
	q.job.RetryCount++
	if q.job.RetryCount >= limit {
		q.job.Status = civic.JobDeadLetter
	} else {
		q.job.Status = civic.JobFailed
	}
	q.statuses = append(q.statuses, q.job.Status)
	return q.job.Status, nil
}

// recordingProcessor notes whether a pass appeared in flight at each
// Process call.
type recordingProcessor struct {
	f       *fetcher.Fetcher
	running []bool
	err     error
}

func (p *recordingProcessor) Process(context.Context, civic.QueueJob) error {
	p.running = append(p.running, p.f.Running())
	return p.err
}

func newTestConductor(t *testing.T, q queueStore, p Processor) *Conductor {
	t.Helper()
	vendors.Register(loopVendor, func(civic.City, *vendors.Deps) (vendors.Adapter, error) {
		return loopAdapter{}, nil
	})
	f := fetcher.New(cityStoreStub{}, sinkStub{}, &vendors.Deps{Log: zap.NewNop()}, nil, zap.NewNop(), fetcher.Options{})
	c := New(nil, f, p, zap.NewNop(), Options{QueueRetryLimit: 3})
	c.queue = q
	c.getCity = func(_ context.Context, banana string) (civic.City, error) {
		return civic.City{Banana: banana, Vendor: loopVendor, Status: civic.CityActive}, nil
	}
	return c
}

func TestSyncAndProcessCityRetriesToDeadLetter(t *testing.T) {
	q := &fakeQueue{job: &civic.QueueJob{
		ID: "job-1", Banana: "oaklandCA", Status: civic.JobPending,
	}}
	c := newTestConductor(t, q, &recordingProcessor{err: errors.New("summarizer down")})
	p := c.processor.(*recordingProcessor)
	p.f = c.fetcher

	res, processed, err := c.SyncAndProcessCity(context.Background(), "oaklandCA")
	require.NoError(t, err)
	assert.Equal(t, civic.SyncCompleted, res.Status)
	assert.Equal(t, 3, processed, "each failed attempt counts as one claim")
	assert.Equal(t, []civic.JobStatus{civic.JobFailed, civic.JobFailed, civic.JobDeadLetter},
		q.statuses, "status degrades to failed before dead_letter")
	assert.Empty(t, q.completed)
}

func TestSyncAndProcessCityRaisesRunningFlag(t *testing.T) {
	q := &fakeQueue{job: &civic.QueueJob{
		ID: "job-2", Banana: "oaklandCA", Status: civic.JobPending,
	}}
	c := newTestConductor(t, q, &recordingProcessor{})
	p := c.processor.(*recordingProcessor)
	p.f = c.fetcher

	require.False(t, c.fetcher.Running())
	_, processed, err := c.SyncAndProcessCity(context.Background(), "oaklandCA")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"job-2"}, q.completed)
	require.NotEmpty(t, p.running)
	for _, r := range p.running {
		assert.True(t, r, "status shows the one-shot pass in flight")
	}
	assert.False(t, c.fetcher.Running(), "flag restored afterward")
}
