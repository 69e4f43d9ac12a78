package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ingestion instruments. Lazily created so Init ordering does not matter;
// before Init they bind to the default (no-op) provider.
var (
	once sync.Once

	httpRequests    metric.Int64Counter
	httpFailures    metric.Int64Counter
	meetingsStored  metric.Int64Counter
	jobsEnqueued    metric.Int64Counter
	citiesFailed    metric.Int64Counter
	syncDurationSec metric.Float64Histogram
)

func instruments() {
	once.Do(func() {
		m := otel.GetMeterProvider().Meter(instrumentationScope)
		httpRequests, _ = m.Int64Counter("civic.vendor.http.requests",
			metric.WithDescription("Outbound vendor HTTP requests"))
		httpFailures, _ = m.Int64Counter("civic.vendor.http.failures",
			metric.WithDescription("Vendor HTTP requests that errored or returned non-2xx"))
		meetingsStored, _ = m.Int64Counter("civic.sync.meetings.stored",
			metric.WithDescription("Meetings written by the sync orchestrator"))
		jobsEnqueued, _ = m.Int64Counter("civic.queue.jobs.enqueued",
			metric.WithDescription("Summarization jobs enqueued"))
		citiesFailed, _ = m.Int64Counter("civic.sync.cities.failed",
			metric.WithDescription("City syncs that ended in failure"))
		syncDurationSec, _ = m.Float64Histogram("civic.sync.city.duration",
			metric.WithDescription("Per-city sync duration"),
			metric.WithUnit("s"))
	})
}

func vendorAttr(vendor string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("vendor", vendor))
}

// CountHTTPRequest records one outbound vendor request.
func CountHTTPRequest(ctx context.Context, vendor string) {
	instruments()
	httpRequests.Add(ctx, 1, vendorAttr(vendor))
}

// CountHTTPFailure records one failed vendor request.
func CountHTTPFailure(ctx context.Context, vendor string) {
	instruments()
	httpFailures.Add(ctx, 1, vendorAttr(vendor))
}

// CountMeetingStored records meetings persisted for a vendor.
func CountMeetingStored(ctx context.Context, vendor string, n int) {
	instruments()
	meetingsStored.Add(ctx, int64(n), vendorAttr(vendor))
}

// CountJobEnqueued records one queue insert.
func CountJobEnqueued(ctx context.Context, vendor string) {
	instruments()
	jobsEnqueued.Add(ctx, 1, vendorAttr(vendor))
}

// CountCityFailed records one failed city sync.
func CountCityFailed(ctx context.Context, vendor string) {
	instruments()
	citiesFailed.Add(ctx, 1, vendorAttr(vendor))
}

// RecordSyncDuration records one city sync duration in seconds.
func RecordSyncDuration(ctx context.Context, vendor string, seconds float64) {
	instruments()
	syncDurationSec.Record(ctx, seconds, vendorAttr(vendor))
}
