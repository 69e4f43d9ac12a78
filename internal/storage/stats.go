package storage

import (
	"context"
	"fmt"
	"time"
)

// Overview is the aggregate snapshot the status command reports.
type Overview struct {
	ActiveCities       int        `json:"active_cities"`
	TotalMeetings      int        `json:"total_meetings"`
	SummarizedMeetings int        `json:"summarized_meetings"`
	PendingMeetings    int        `json:"pending_meetings"`
	TrackedMatters     int        `json:"tracked_matters"`
	PendingJobs        int        `json:"pending_jobs"`
	DeadLetterJobs     int        `json:"dead_letter_jobs"`
	LastSynced         *time.Time `json:"last_synced,omitempty"`
}

// GetOverview computes the status snapshot in one round trip.
func GetOverview(ctx context.Context, db DB) (Overview, error) {
	var o Overview
	err := db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM cities WHERE status = 'active'),
			(SELECT count(*) FROM meetings),
			(SELECT count(*) FROM meetings WHERE processing_status = 'completed'),
			(SELECT count(*) FROM meetings WHERE processing_status = 'pending'),
			(SELECT count(*) FROM city_matters),
			(SELECT count(*) FROM queue WHERE status = 'pending'),
			(SELECT count(*) FROM queue WHERE status = 'dead_letter'),
			(SELECT max(last_synced) FROM cities)`).Scan(
		&o.ActiveCities, &o.TotalMeetings, &o.SummarizedMeetings, &o.PendingMeetings,
		&o.TrackedMatters, &o.PendingJobs, &o.DeadLetterJobs, &o.LastSynced)
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}
	return o, nil
}
