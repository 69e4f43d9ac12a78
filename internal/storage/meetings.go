package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civiclight/civiclight/internal/civic"
)

// ChangeKind classifies what a meeting upsert did.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeNew
	ChangeUpdated
)

// UpsertMeeting writes the meeting row and reports whether it was new,
// changed (digest mismatch), or untouched. Item writes are separate.
func UpsertMeeting(ctx context.Context, db DB, m civic.Meeting, digest string) (ChangeKind, error) {
	var prior string
	err := db.QueryRow(ctx,
		`SELECT change_digest FROM meetings WHERE id = $1`, m.ID).Scan(&prior)
	isNew := errors.Is(err, pgx.ErrNoRows)
	switch {
	case isNew:
		// New meeting.
	case err != nil:
		return ChangeNone, fmt.Errorf("read meeting %s digest: %w", m.ID, err)
	case prior == digest:
		return ChangeNone, nil
	}

	participation, jerr := encodeJSON(m.Participation)
	if jerr != nil {
		return ChangeNone, jerr
	}
	_, err = db.Exec(ctx, `
		INSERT INTO meetings (id, banana, vendor_id, title, start_time, agenda_url, packet_url,
			location, status, participation, committee_id, change_digest, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			start_time = EXCLUDED.start_time,
			agenda_url = EXCLUDED.agenda_url,
			packet_url = EXCLUDED.packet_url,
			location = EXCLUDED.location,
			status = EXCLUDED.status,
			participation = COALESCE(EXCLUDED.participation, meetings.participation),
			committee_id = EXCLUDED.committee_id,
			change_digest = EXCLUDED.change_digest,
			updated_at = now()`,
		m.ID, m.Banana, m.VendorID, m.Title, m.Start, m.AgendaURL, m.PacketURL,
		m.Location, string(m.Status), participation, m.CommitteeID, digest)
	if err != nil {
		return ChangeNone, fmt.Errorf("upsert meeting %s: %w", m.ID, err)
	}
	if isNew {
		return ChangeNew, nil
	}
	return ChangeUpdated, nil
}

// GetMeeting loads one meeting with topics and items.
func GetMeeting(ctx context.Context, db DB, id string) (civic.Meeting, error) {
	var m civic.Meeting
	var status, procStatus string
	var participation []byte
	err := db.QueryRow(ctx, `
		SELECT id, banana, vendor_id, title, start_time, agenda_url, packet_url, location,
			status, participation, summary, processing_status, processing_method,
			processing_time, committee_id, created_at, updated_at
		FROM meetings WHERE id = $1`, id).Scan(
		&m.ID, &m.Banana, &m.VendorID, &m.Title, &m.Start, &m.AgendaURL, &m.PacketURL,
		&m.Location, &status, &participation, &m.Summary, &procStatus,
		&m.ProcessingMethod, &m.ProcessingTime, &m.CommitteeID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return civic.Meeting{}, fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return civic.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	m.Status = civic.MeetingStatus(status)
	m.ProcessingStatus = civic.ProcessingStatus(procStatus)
	if err := decodeJSON(participation, &m.Participation, "meetings.participation"); err != nil {
		return civic.Meeting{}, err
	}

	m.Topics, err = topicsFor(ctx, db, "meeting_topics", "meeting_id", id)
	if err != nil {
		return civic.Meeting{}, err
	}
	itemsByMeeting, err := GetItemsForMeetings(ctx, db, []string{id})
	if err != nil {
		return civic.Meeting{}, err
	}
	m.Items = itemsByMeeting[id]
	return m, nil
}

// ReplaceMeetingTopics atomically replaces the topic join rows.
func ReplaceMeetingTopics(ctx context.Context, db DB, meetingID string, topics []string) error {
	return replaceTopics(ctx, db, "meeting_topics", "meeting_id", meetingID, topics)
}

// SetMeetingSummary is the processor write-back: summary, status,
// method, time, optional participation, and topics in one shot.
func SetMeetingSummary(ctx context.Context, db DB, id, summary, method string,
	participation *civic.ParticipationInfo, topics []string) error {
	enc, err := encodeJSON(participation)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE meetings SET
			summary = $2,
			processing_status = $3,
			processing_method = $4,
			processing_time = now(),
			participation = COALESCE($5, participation),
			updated_at = now()
		WHERE id = $1`,
		id, summary, string(civic.ProcessingCompleted), method, enc)
	if err != nil {
		return fmt.Errorf("set summary for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	return ReplaceMeetingTopics(ctx, db, id, topics)
}

// MeetingsForCity lists a city's meetings newest first.
func MeetingsForCity(ctx context.Context, db DB, banana string, limit int) ([]civic.Meeting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
		SELECT id, banana, vendor_id, title, start_time, agenda_url, packet_url, location,
			status, summary, processing_status
		FROM meetings WHERE banana = $1
		ORDER BY start_time DESC LIMIT $2`, banana, limit)
	if err != nil {
		return nil, fmt.Errorf("meetings for %s: %w", banana, err)
	}
	defer rows.Close()

	var meetings []civic.Meeting
	for rows.Next() {
		var m civic.Meeting
		var status, procStatus string
		if err := rows.Scan(&m.ID, &m.Banana, &m.VendorID, &m.Title, &m.Start,
			&m.AgendaURL, &m.PacketURL, &m.Location, &status, &m.Summary, &procStatus); err != nil {
			return nil, err
		}
		m.Status = civic.MeetingStatus(status)
		m.ProcessingStatus = civic.ProcessingStatus(procStatus)
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// MeetingSummarized reports whether the processor already wrote a
// summary for the meeting. Missing meetings count as unsummarized.
func MeetingSummarized(ctx context.Context, db DB, id string) (bool, error) {
	var done bool
	err := db.QueryRow(ctx, `
		SELECT processing_status = 'completed' FROM meetings WHERE id = $1`, id).Scan(&done)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("summarized %s: %w", id, err)
	}
	return done, nil
}

// MeetingSyncedAt returns when the meeting row last changed, for
// debugging stale cities. Not used on the hot path.
func MeetingSyncedAt(ctx context.Context, db DB, id string) (time.Time, error) {
	var t time.Time
	err := db.QueryRow(ctx, `SELECT updated_at FROM meetings WHERE id = $1`, id).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	return t, err
}
