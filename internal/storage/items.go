package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/civiclight/civiclight/internal/civic"
)

// UpsertItems writes a meeting's items in one batch and removes rows
// for items no longer on the agenda.
func UpsertItems(ctx context.Context, db DB, meetingID string, items []civic.AgendaItem) error {
	batch := &pgx.Batch{}
	keep := make([]string, 0, len(items))
	for _, it := range items {
		sponsors, err := encodeJSON(it.Sponsors)
		if err != nil {
			return err
		}
		attachments, err := encodeJSON(it.Attachments)
		if err != nil {
			return err
		}
		keep = append(keep, it.ID)
		batch.Queue(`
			INSERT INTO items (id, meeting_id, vendor_item_id, title, sequence, agenda_number,
				matter_file, matter_id, matter_type, sponsors, attachments, attachment_hash,
				description, section, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				sequence = EXCLUDED.sequence,
				agenda_number = EXCLUDED.agenda_number,
				matter_file = EXCLUDED.matter_file,
				matter_id = EXCLUDED.matter_id,
				matter_type = EXCLUDED.matter_type,
				sponsors = EXCLUDED.sponsors,
				attachments = EXCLUDED.attachments,
				attachment_hash = EXCLUDED.attachment_hash,
				description = EXCLUDED.description,
				section = EXCLUDED.section,
				updated_at = now()`,
			it.ID, meetingID, it.VendorItemID, it.Title, it.Sequence, it.AgendaNumber,
			it.MatterFile, it.MatterID, it.MatterType, sponsors, attachments, it.AttachmentHash,
			it.Description, it.Section)
	}
	if batch.Len() > 0 {
		res := db.SendBatch(ctx, batch)
		for range items {
			if _, err := res.Exec(); err != nil {
				res.Close()
				return fmt.Errorf("upsert items for meeting %s: %w", meetingID, err)
			}
		}
		if err := res.Close(); err != nil {
			return fmt.Errorf("upsert items for meeting %s: %w", meetingID, err)
		}
	}

	_, err := db.Exec(ctx,
		`DELETE FROM items WHERE meeting_id = $1 AND NOT (id = ANY($2))`,
		meetingID, keep)
	if err != nil {
		return fmt.Errorf("prune items for meeting %s: %w", meetingID, err)
	}
	return nil
}

// ReplaceItemTopics atomically replaces an item's topic join rows.
func ReplaceItemTopics(ctx context.Context, db DB, itemID string, topics []string) error {
	return replaceTopics(ctx, db, "item_topics", "item_id", itemID, topics)
}

// GetItemsForMeetings batch-loads items for many meetings, keyed by
// meeting id. Avoids the per-meeting N+1.
func GetItemsForMeetings(ctx context.Context, db DB, meetingIDs []string) (map[string][]civic.AgendaItem, error) {
	if len(meetingIDs) == 0 {
		return map[string][]civic.AgendaItem{}, nil
	}
	rows, err := db.Query(ctx, `
		SELECT id, meeting_id, vendor_item_id, title, sequence, agenda_number,
			matter_file, matter_id, matter_type, sponsors, attachments, attachment_hash,
			description, section, summary
		FROM items WHERE meeting_id = ANY($1)
		ORDER BY meeting_id, sequence`, meetingIDs)
	if err != nil {
		return nil, fmt.Errorf("items for meetings: %w", err)
	}
	defer rows.Close()

	out := map[string][]civic.AgendaItem{}
	for rows.Next() {
		var it civic.AgendaItem
		var sponsors, attachments []byte
		if err := rows.Scan(&it.ID, &it.MeetingID, &it.VendorItemID, &it.Title, &it.Sequence,
			&it.AgendaNumber, &it.MatterFile, &it.MatterID, &it.MatterType,
			&sponsors, &attachments, &it.AttachmentHash,
			&it.Description, &it.Section, &it.Summary); err != nil {
			return nil, err
		}
		if err := decodeJSON(sponsors, &it.Sponsors, "items.sponsors"); err != nil {
			return nil, err
		}
		if err := decodeJSON(attachments, &it.Attachments, "items.attachments"); err != nil {
			return nil, err
		}
		out[it.MeetingID] = append(out[it.MeetingID], it)
	}
	return out, rows.Err()
}
