// Package conductor owns the long-running process: a sync loop that
// runs full passes on a multi-day cadence and a processing loop that
// drains the summarization queue into an external processor.
package conductor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/fetcher"
	"github.com/civiclight/civiclight/internal/storage"
)

// Processor summarizes one claimed queue job. The implementation is
// external to this module; an unconfigured conductor leaves jobs
// pending.
type Processor interface {
	Process(ctx context.Context, job civic.QueueJob) error
}

// Options tunes the loops.
type Options struct {
	SyncInterval       time.Duration // between full passes; default 7d
	ErrorBackoff       time.Duration // after a failed pass; default 2d
	ProcessingInterval time.Duration // queue poll period; default 30s
	QueueRetryLimit    int           // attempts before dead_letter; default 3
}

func (o *Options) defaults() {
	if o.SyncInterval <= 0 {
		o.SyncInterval = 7 * 24 * time.Hour
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 2 * 24 * time.Hour
	}
	if o.ProcessingInterval <= 0 {
		o.ProcessingInterval = 30 * time.Second
	}
	if o.QueueRetryLimit <= 0 {
		o.QueueRetryLimit = 3
	}
}

// queueStore is the conductor's claim/complete/fail surface on the
// summarization queue.
type queueStore interface {
	ClaimNext(ctx context.Context) (civic.QueueJob, error)
	ClaimNextForCity(ctx context.Context, banana string) (civic.QueueJob, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id, errMsg string, retryLimit int) (civic.JobStatus, error)
}

// pgQueue binds queueStore to the Postgres queue.
type pgQueue struct{ store *storage.Store }

func (q pgQueue) ClaimNext(ctx context.Context) (civic.QueueJob, error) {
	return storage.ClaimNext(ctx, q.store.Pool())
}

func (q pgQueue) ClaimNextForCity(ctx context.Context, banana string) (civic.QueueJob, error) {
	return storage.ClaimNextForCity(ctx, q.store.Pool(), banana)
}

func (q pgQueue) CompleteJob(ctx context.Context, id string) error {
	return storage.CompleteJob(ctx, q.store.Pool(), id)
}

func (q pgQueue) FailJob(ctx context.Context, id, errMsg string, retryLimit int) (civic.JobStatus, error) {
	return storage.FailJob(ctx, q.store.Pool(), id, errMsg, retryLimit)
}

// Conductor wires the fetcher, store, and processor together.
type Conductor struct {
	store     *storage.Store
	fetcher   *fetcher.Fetcher
	processor Processor // nil when not configured
	log       *zap.Logger
	opts      Options

	mu           sync.Mutex
	lastFullSync *time.Time

	// test seams; New binds them to the store.
	queue   queueStore
	getCity func(ctx context.Context, banana string) (civic.City, error)
	sleep   func(ctx context.Context, d time.Duration)
}

// New builds a Conductor. processor may be nil.
func New(store *storage.Store, f *fetcher.Fetcher, processor Processor, log *zap.Logger, opts Options) *Conductor {
	opts.defaults()
	return &Conductor{
		store:     store,
		fetcher:   f,
		processor: processor,
		log:       log.Named("conductor"),
		opts:      opts,
		queue:     pgQueue{store: store},
		getCity: func(ctx context.Context, banana string) (civic.City, error) {
			return storage.GetCity(ctx, store.Pool(), banana)
		},
		sleep: sleepCtx,
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

// Run blocks until ctx is cancelled, driving both loops.
func (c *Conductor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.syncLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.processingLoop(ctx)
	}()
	wg.Wait()
	return ctx.Err()
}

// syncLoop runs full passes. Errors are logged and backed off; the
// loop never crashes the process.
func (c *Conductor) syncLoop(ctx context.Context) {
	for ctx.Err() == nil {
		started := time.Now()
		results, err := c.fetcher.SyncAll(ctx)
		if err != nil {
			c.log.Error("full sync failed", zap.Error(err))
			c.sleep(ctx, c.opts.ErrorBackoff)
			continue
		}

		c.mu.Lock()
		now := time.Now()
		c.lastFullSync = &now
		c.mu.Unlock()

		completed, failed, skipped := 0, 0, 0
		for _, r := range results {
			switch r.Status {
			case civic.SyncCompleted:
				completed++
			case civic.SyncFailed:
				failed++
			case civic.SyncSkipped:
				skipped++
			}
		}
		c.log.Info("full sync pass finished",
			zap.Int("completed", completed),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
			zap.Duration("took", time.Since(started)))

		c.sleep(ctx, c.opts.SyncInterval)
	}
}

// processingLoop drains pending queue jobs. With no processor it
// sleeps; jobs stay pending for an external worker.
func (c *Conductor) processingLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if c.processor == nil {
			c.sleep(ctx, c.opts.ProcessingInterval)
			continue
		}
		worked, err := c.processOne(ctx, "")
		if err != nil {
			c.log.Error("queue processing error", zap.Error(err))
		}
		if !worked {
			c.sleep(ctx, c.opts.ProcessingInterval)
		}
	}
}

// processOne claims and runs one job. Returns false when the queue is
// empty.
func (c *Conductor) processOne(ctx context.Context, banana string) (bool, error) {
	var job civic.QueueJob
	var err error
	if banana == "" {
		job, err = c.queue.ClaimNext(ctx)
	} else {
		job, err = c.queue.ClaimNextForCity(ctx, banana)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if perr := c.processor.Process(ctx, job); perr != nil {
		status, ferr := c.queue.FailJob(ctx, job.ID, perr.Error(), c.opts.QueueRetryLimit)
		if ferr != nil {
			return true, ferr
		}
		c.log.Warn("job failed",
			zap.String("job", job.ID),
			zap.String("source_url", job.SourceURL),
			zap.String("status", string(status)),
			zap.Error(perr))
		return true, nil
	}
	if err := c.queue.CompleteJob(ctx, job.ID); err != nil {
		return true, err
	}
	return true, nil
}

// SyncAllNow runs one full pass outside the daemon loop and records
// last_full_sync.
func (c *Conductor) SyncAllNow(ctx context.Context) ([]civic.SyncResult, error) {
	results, err := c.fetcher.SyncAll(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	now := time.Now()
	c.lastFullSync = &now
	c.mu.Unlock()
	return results, nil
}

// SyncCity force-syncs one city.
func (c *Conductor) SyncCity(ctx context.Context, banana string) (civic.SyncResult, error) {
	city, err := c.getCity(ctx, banana)
	if err != nil {
		return civic.SyncResult{}, err
	}
	return c.fetcher.SyncCity(ctx, city), nil
}

// SyncAndProcessCity syncs one city then drains its queue jobs.
// Requires a configured processor.
func (c *Conductor) SyncAndProcessCity(ctx context.Context, banana string) (civic.SyncResult, int, error) {
	// Raise the pass-in-flight flag for the whole sync-and-drain so
	// status reports it and a concurrent full pass is refused.
	prev := c.fetcher.SetRunning(true)
	defer c.fetcher.SetRunning(prev)

	res, err := c.SyncCity(ctx, banana)
	if err != nil {
		return res, 0, err
	}
	if c.processor == nil {
		return res, 0, errors.New("conductor: no processor configured")
	}

	processed := 0
	for {
		worked, err := c.processOne(ctx, banana)
		if err != nil {
			return res, processed, err
		}
		if !worked {
			return res, processed, nil
		}
		processed++
	}
}

// Status is the admin snapshot.
type Status struct {
	IsRunning    bool             `json:"is_running"`
	LastFullSync *time.Time       `json:"last_full_sync,omitempty"`
	FailedCities []string         `json:"failed_cities"`
	Overview     storage.Overview `json:"overview"`
}

// GetStatus assembles the status snapshot.
func (c *Conductor) GetStatus(ctx context.Context) (Status, error) {
	overview, err := storage.GetOverview(ctx, c.store.Pool())
	if err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	last := c.lastFullSync
	c.mu.Unlock()
	return Status{
		IsRunning:    c.fetcher.Running(),
		LastFullSync: last,
		FailedCities: c.fetcher.FailedCities(),
		Overview:     overview,
	}, nil
}
