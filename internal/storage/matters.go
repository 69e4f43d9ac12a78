package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civiclight/civiclight/internal/civic"
)

// MatterExists reports whether the matter row is already tracked.
func MatterExists(ctx context.Context, db DB, id string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM city_matters WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("matter %s exists: %w", id, err)
	}
	return exists, nil
}

// CreateMatter inserts a first-sighting matter row. Concurrent first
// sightings resolve via ON CONFLICT DO NOTHING; the caller then records
// the appearance either way.
func CreateMatter(ctx context.Context, db DB, m civic.Matter) error {
	sponsors, err := encodeJSON(m.Sponsors)
	if err != nil {
		return err
	}
	attachments, err := encodeJSON(m.Attachments)
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(m.Metadata)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO city_matters (id, banana, matter_file, matter_id, matter_type, title,
			sponsors, attachments, metadata, first_seen, last_seen, appearance_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Banana, m.File, m.VendorID, m.Type, m.Title,
		sponsors, attachments, metadata, m.FirstSeen, m.LastSeen, string(m.Status))
	if err != nil {
		return fmt.Errorf("create matter %s: %w", m.ID, err)
	}
	return nil
}

// BumpMatter records a repeat sighting: last_seen, attachments, and the
// appearance counter move in one statement that returns the new count.
func BumpMatter(ctx context.Context, db DB, id string, seenAt time.Time,
	attachments []civic.Attachment, attachmentHash string) (int, error) {
	enc, err := encodeJSON(attachments)
	if err != nil {
		return 0, err
	}
	var count int
	err = db.QueryRow(ctx, `
		UPDATE city_matters SET
			last_seen = GREATEST(last_seen, $2),
			attachments = COALESCE($3, attachments),
			metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('attachment_hash', $4::text),
			appearance_count = appearance_count + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING appearance_count`,
		id, seenAt, enc, attachmentHash).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("matter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("bump matter %s: %w", id, err)
	}
	return count, nil
}

// AppearanceExists reports whether this (matter, meeting) pairing was
// already recorded, regardless of item.
func AppearanceExists(ctx context.Context, db DB, matterID, meetingID string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM matter_appearances WHERE matter_id = $1 AND meeting_id = $2)`,
		matterID, meetingID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appearance exists %s/%s: %w", matterID, meetingID, err)
	}
	return exists, nil
}

// InsertAppearance records one sighting; duplicates are no-ops.
func InsertAppearance(ctx context.Context, db DB, a civic.MatterAppearance) error {
	_, err := db.Exec(ctx, `
		INSERT INTO matter_appearances (matter_id, meeting_id, item_id, appeared_at,
			committee, committee_id, sequence, vote_outcome, vote_tally)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (matter_id, meeting_id, item_id) DO NOTHING`,
		a.MatterID, a.MeetingID, a.ItemID, a.AppearedAt,
		a.Committee, a.CommitteeID, a.Sequence, a.VoteOutcome, a.VoteTally)
	if err != nil {
		return fmt.Errorf("insert appearance %s/%s: %w", a.MatterID, a.MeetingID, err)
	}
	return nil
}

// GetMatter loads one matter with topics.
func GetMatter(ctx context.Context, db DB, id string) (civic.Matter, error) {
	var m civic.Matter
	var status string
	var sponsors, attachments, metadata []byte
	err := db.QueryRow(ctx, `
		SELECT id, banana, matter_file, matter_id, matter_type, title, sponsors,
			canonical_summary, attachments, metadata, first_seen, last_seen,
			appearance_count, status, final_vote_date
		FROM city_matters WHERE id = $1`, id).Scan(
		&m.ID, &m.Banana, &m.File, &m.VendorID, &m.Type, &m.Title, &sponsors,
		&m.CanonicalSummary, &attachments, &metadata, &m.FirstSeen, &m.LastSeen,
		&m.AppearanceCount, &status, &m.FinalVoteDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return civic.Matter{}, fmt.Errorf("matter %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return civic.Matter{}, fmt.Errorf("get matter %s: %w", id, err)
	}
	m.Status = civic.MatterStatus(status)
	if err := decodeJSON(sponsors, &m.Sponsors, "city_matters.sponsors"); err != nil {
		return civic.Matter{}, err
	}
	if err := decodeJSON(attachments, &m.Attachments, "city_matters.attachments"); err != nil {
		return civic.Matter{}, err
	}
	if err := decodeJSON(metadata, &m.Metadata, "city_matters.metadata"); err != nil {
		return civic.Matter{}, err
	}
	m.CanonicalTopics, err = topicsFor(ctx, db, "matter_topics", "matter_id", id)
	return m, err
}

// GetMattersBatch loads many matters keyed by id.
func GetMattersBatch(ctx context.Context, db DB, ids []string) (map[string]civic.Matter, error) {
	out := map[string]civic.Matter{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.Query(ctx, `
		SELECT id, banana, matter_file, matter_id, matter_type, title,
			first_seen, last_seen, appearance_count, status
		FROM city_matters WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("matters batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m civic.Matter
		var status string
		if err := rows.Scan(&m.ID, &m.Banana, &m.File, &m.VendorID, &m.Type, &m.Title,
			&m.FirstSeen, &m.LastSeen, &m.AppearanceCount, &status); err != nil {
			return nil, err
		}
		m.Status = civic.MatterStatus(status)
		out[m.ID] = m
	}
	return out, rows.Err()
}

// ReplaceMatterTopics atomically replaces a matter's topic join rows.
func ReplaceMatterTopics(ctx context.Context, db DB, matterID string, topics []string) error {
	return replaceTopics(ctx, db, "matter_topics", "matter_id", matterID, topics)
}
