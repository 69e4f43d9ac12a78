package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civiclight/civiclight/internal/civic"
)

// Enqueue inserts a summarization job, idempotent on source_url. It
// reports whether a new row was created.
func Enqueue(ctx context.Context, db DB, sourceURL, meetingID, banana string, priority int) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO queue (id, source_url, meeting_id, banana, status, priority)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		ON CONFLICT (source_url) DO NOTHING`,
		uuid.NewString(), sourceURL, meetingID, banana, priority)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", sourceURL, err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasOpenJob reports whether an open job already exists for the source
// URL. A failed job below the retry limit is still open: it will be
// claimed again.
func HasOpenJob(ctx context.Context, db DB, sourceURL string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM queue
			WHERE source_url = $1 AND status IN ('pending', 'processing', 'failed'))`,
		sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("open job for %s: %w", sourceURL, err)
	}
	return exists, nil
}

// ClaimNext atomically claims the highest-priority claimable job
// (pending or retryable failed), moving it to processing with
// started_at set. Returns ErrNotFound when the queue is empty. Safe
// under concurrent claimers.
func ClaimNext(ctx context.Context, db DB) (civic.QueueJob, error) {
	return claim(ctx, db, "")
}

// ClaimNextForCity claims the next claimable job for one city.
func ClaimNextForCity(ctx context.Context, db DB, banana string) (civic.QueueJob, error) {
	return claim(ctx, db, banana)
}

func claim(ctx context.Context, db DB, banana string) (civic.QueueJob, error) {
	var j civic.QueueJob
	var status string
	err := db.QueryRow(ctx, `
		UPDATE queue SET status = 'processing', started_at = now()
		WHERE id = (
			SELECT id FROM queue
			WHERE status IN ('pending', 'failed') AND ($1 = '' OR banana = $1)
			ORDER BY priority DESC, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, source_url, meeting_id, banana, status, priority, retry_count,
			created_at, started_at`, banana).Scan(
		&j.ID, &j.SourceURL, &j.MeetingID, &j.Banana, &status, &j.Priority,
		&j.RetryCount, &j.CreatedAt, &j.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return civic.QueueJob{}, ErrNotFound
	}
	if err != nil {
		return civic.QueueJob{}, fmt.Errorf("claim job: %w", err)
	}
	j.Status = civic.JobStatus(status)
	return j, nil
}

// CompleteJob marks a claimed job done.
func CompleteJob(ctx context.Context, db DB, id string) error {
	tag, err := db.Exec(ctx,
		`UPDATE queue SET status = 'completed', completed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// FailJob records a failure: retry_count increments and the status
// moves to failed, or to dead_letter once the limit is reached. Failed
// jobs stay claimable; dead_letter jobs need operator attention.
func FailJob(ctx context.Context, db DB, id, errMsg string, retryLimit int) (civic.JobStatus, error) {
	var status string
	err := db.QueryRow(ctx, `
		UPDATE queue SET
			retry_count = retry_count + 1,
			error_message = $2,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'dead_letter' ELSE 'failed' END,
			failed_at = now(),
			started_at = NULL
		WHERE id = $1
		RETURNING status`, id, errMsg, retryLimit).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fail job %s: %w", id, err)
	}
	return civic.JobStatus(status), nil
}

// QueueCounts returns job totals by status.
func QueueCounts(ctx context.Context, db DB) (map[civic.JobStatus]int, error) {
	rows, err := db.Query(ctx, `SELECT status, count(*) FROM queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	out := map[civic.JobStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[civic.JobStatus(status)] = n
	}
	return out, rows.Err()
}
