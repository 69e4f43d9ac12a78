// Package syncer turns adapter DTOs into durable, deduplicated state:
// meeting upserts with change detection, within-meeting item dedup by
// matter reference, cross-meeting matter tracking, and summarization
// enqueueing. Each meeting is one transaction.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/storage"
	"github.com/civiclight/civiclight/internal/telemetry"
	"github.com/civiclight/civiclight/internal/vendors"
)

// TxStore is the per-transaction persistence surface the orchestrator
// writes through. Production binds it to one pgx transaction; tests
// supply an in-memory fake.
type TxStore interface {
	UpsertMeeting(ctx context.Context, m civic.Meeting, digest string) (storage.ChangeKind, error)
	UpsertItems(ctx context.Context, meetingID string, items []civic.AgendaItem) error
	ReplaceItemTopics(ctx context.Context, itemID string, topics []string) error
	ReplaceMeetingTopics(ctx context.Context, meetingID string, topics []string) error

	MatterExists(ctx context.Context, id string) (bool, error)
	CreateMatter(ctx context.Context, m civic.Matter) error
	BumpMatter(ctx context.Context, id string, seenAt time.Time, attachments []civic.Attachment, hash string) (int, error)
	AppearanceExists(ctx context.Context, matterID, meetingID string) (bool, error)
	InsertAppearance(ctx context.Context, a civic.MatterAppearance) error

	MeetingSummarized(ctx context.Context, meetingID string) (bool, error)
	HasOpenJob(ctx context.Context, sourceURL string) (bool, error)
	Enqueue(ctx context.Context, sourceURL, meetingID, banana string, priority int) (bool, error)
}

// Syncer orchestrates meeting persistence.
type Syncer struct {
	log *zap.Logger

	// inTx runs fn inside one transaction against a TxStore.
	inTx func(ctx context.Context, fn func(TxStore) error) error
}

// New builds a Syncer over a live store.
func New(store *storage.Store, log *zap.Logger) *Syncer {
	return &Syncer{
		log: log.Named("syncer"),
		inTx: func(ctx context.Context, fn func(TxStore) error) error {
			return store.RunInTransaction(ctx, func(tx pgx.Tx) error {
				return fn(&txStore{db: tx})
			})
		},
	}
}

// NewWithTx builds a Syncer over a custom transaction runner. Test
// seam.
func NewWithTx(inTx func(ctx context.Context, fn func(TxStore) error) error, log *zap.Logger) *Syncer {
	return &Syncer{log: log.Named("syncer"), inTx: inTx}
}

// SyncMeeting persists one adapter DTO for one city. The whole write
// set commits or rolls back together.
func (s *Syncer) SyncMeeting(ctx context.Context, city civic.City, dto civic.Meeting) (civic.StoreStats, error) {
	m := dto
	m.Banana = city.Banana
	m.ID = civic.MeetingID(city.Banana, m.VendorID)
	digest := civic.ChangeDigest(m.ID, m.Title, m.Start, m.PacketURL)

	var stats civic.StoreStats
	err := s.inTx(ctx, func(st TxStore) error {
		change, err := st.UpsertMeeting(ctx, m, digest)
		if err != nil {
			return err
		}
		stats.New = change == storage.ChangeNew
		stats.Changed = change != storage.ChangeNone

		items, dupes := DedupItems(m.Items)
		stats.MattersDuplicate = dupes
		for i := range items {
			items[i].MeetingID = m.ID
			items[i].ID = civic.ItemID(m.ID, items[i].VendorItemID, items[i].Sequence)
		}
		if err := st.UpsertItems(ctx, m.ID, items); err != nil {
			return err
		}
		stats.ItemsStored = len(items)
		for i := range items {
			if len(items[i].Topics) == 0 {
				continue
			}
			if err := st.ReplaceItemTopics(ctx, items[i].ID, items[i].Topics); err != nil {
				return err
			}
		}
		if len(m.Topics) > 0 {
			if err := st.ReplaceMeetingTopics(ctx, m.ID, m.Topics); err != nil {
				return err
			}
		}

		tracked, err := s.trackMatters(ctx, st, city, m, items)
		if err != nil {
			return err
		}
		stats.MattersTracked = tracked

		enqueued, err := s.maybeEnqueue(ctx, st, m, len(items))
		if err != nil {
			return err
		}
		stats.Enqueued = enqueued
		if !enqueued && m.SourceURL() == "" && len(items) == 0 {
			stats.MeetingsSkipped = 1
		}
		return nil
	})
	if err != nil {
		return civic.StoreStats{}, fmt.Errorf("sync meeting %s: %w", m.ID, err)
	}
	telemetry.CountMeetingStored(ctx, string(city.Vendor), 1)
	if stats.Enqueued {
		telemetry.CountJobEnqueued(ctx, string(city.Vendor))
	}
	return stats, nil
}

// trackMatters creates or updates the matter row behind every item that
// carries a matter reference, plus the appearance link.
func (s *Syncer) trackMatters(ctx context.Context, st TxStore, city civic.City, m civic.Meeting, items []civic.AgendaItem) (int, error) {
	tracked := 0
	for _, it := range items {
		if !it.HasMatter() {
			continue
		}
		if vendors.SkipMatterType(it.MatterType) {
			continue
		}
		matterID := civic.MatterID(city.Banana, it.MatterFile, it.MatterID, it.Title)

		exists, err := st.MatterExists(ctx, matterID)
		if err != nil {
			return tracked, err
		}
		if !exists {
			err = st.CreateMatter(ctx, civic.Matter{
				ID:          matterID,
				Banana:      city.Banana,
				File:        it.MatterFile,
				VendorID:    it.MatterID,
				Type:        it.MatterType,
				Title:       it.Title,
				Sponsors:    it.Sponsors,
				Attachments: it.Attachments,
				Metadata:    map[string]string{"attachment_hash": it.AttachmentHash},
				FirstSeen:   m.Start,
				LastSeen:    m.Start,
				Status:      civic.MatterActive,
			})
			if err != nil {
				return tracked, err
			}
		} else {
			seen, err := st.AppearanceExists(ctx, matterID, m.ID)
			if err != nil {
				return tracked, err
			}
			if !seen {
				if _, err := st.BumpMatter(ctx, matterID, m.Start, it.Attachments, it.AttachmentHash); err != nil {
					return tracked, err
				}
			}
		}

		err = st.InsertAppearance(ctx, civic.MatterAppearance{
			MatterID:    matterID,
			MeetingID:   m.ID,
			ItemID:      it.ID,
			AppearedAt:  m.Start,
			CommitteeID: m.CommitteeID,
			Sequence:    it.Sequence,
		})
		if err != nil {
			return tracked, err
		}
		tracked++
	}
	return tracked, nil
}

// maybeEnqueue applies the enqueue decider: a meeting qualifies when it
// has a source URL, has not been summarized, and no open job exists for
// that URL.
func (s *Syncer) maybeEnqueue(ctx context.Context, st TxStore, m civic.Meeting, itemCount int) (bool, error) {
	sourceURL := m.SourceURL()
	if sourceURL == "" {
		if itemCount == 0 {
			s.log.Debug("meeting stored without source url or items; not enqueued",
				zap.String("meeting", m.ID))
		}
		return false, nil
	}
	summarized, err := st.MeetingSummarized(ctx, m.ID)
	if err != nil {
		return false, err
	}
	if summarized {
		return false, nil
	}
	open, err := st.HasOpenJob(ctx, sourceURL)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}
	return st.Enqueue(ctx, sourceURL, m.ID, m.Banana, 0)
}

// completenessScore ranks duplicate items that share a matter: one
// point each for agenda number, summary, attachments, topics, sponsors.
func completenessScore(it civic.AgendaItem) int {
	score := 0
	if it.AgendaNumber != "" {
		score++
	}
	if it.Summary != "" || it.Description != "" {
		score++
	}
	if len(it.Attachments) > 0 {
		score++
	}
	if len(it.Topics) > 0 {
		score++
	}
	if len(it.Sponsors) > 0 {
		score++
	}
	return score
}

// DedupItems collapses items that reference the same matter, keeping
// the most complete one per matter. Items without a matter reference
// pass through. Sequences are renumbered densely afterward. Returns the
// kept items and the number of duplicates removed.
func DedupItems(items []civic.AgendaItem) ([]civic.AgendaItem, int) {
	bestByMatter := map[string]int{}
	dupes := 0
	var kept []civic.AgendaItem
	for _, it := range items {
		key := it.MatterKey()
		if key == "" {
			kept = append(kept, it)
			continue
		}
		if at, ok := bestByMatter[key]; ok {
			dupes++
			if completenessScore(it) > completenessScore(kept[at]) {
				kept[at] = it
			}
			continue
		}
		bestByMatter[key] = len(kept)
		kept = append(kept, it)
	}
	for i := range kept {
		kept[i].Sequence = i + 1
	}
	return kept, dupes
}

// txStore binds the TxStore surface to one pgx transaction.
type txStore struct {
	db storage.DB
}

func (t *txStore) UpsertMeeting(ctx context.Context, m civic.Meeting, digest string) (storage.ChangeKind, error) {
	return storage.UpsertMeeting(ctx, t.db, m, digest)
}

func (t *txStore) UpsertItems(ctx context.Context, meetingID string, items []civic.AgendaItem) error {
	return storage.UpsertItems(ctx, t.db, meetingID, items)
}

func (t *txStore) ReplaceItemTopics(ctx context.Context, itemID string, topics []string) error {
	return storage.ReplaceItemTopics(ctx, t.db, itemID, topics)
}

func (t *txStore) ReplaceMeetingTopics(ctx context.Context, meetingID string, topics []string) error {
	return storage.ReplaceMeetingTopics(ctx, t.db, meetingID, topics)
}

func (t *txStore) MatterExists(ctx context.Context, id string) (bool, error) {
	return storage.MatterExists(ctx, t.db, id)
}

func (t *txStore) CreateMatter(ctx context.Context, m civic.Matter) error {
	return storage.CreateMatter(ctx, t.db, m)
}

func (t *txStore) BumpMatter(ctx context.Context, id string, seenAt time.Time, attachments []civic.Attachment, hash string) (int, error) {
	return storage.BumpMatter(ctx, t.db, id, seenAt, attachments, hash)
}

func (t *txStore) AppearanceExists(ctx context.Context, matterID, meetingID string) (bool, error) {
	return storage.AppearanceExists(ctx, t.db, matterID, meetingID)
}

func (t *txStore) InsertAppearance(ctx context.Context, a civic.MatterAppearance) error {
	return storage.InsertAppearance(ctx, t.db, a)
}

func (t *txStore) MeetingSummarized(ctx context.Context, meetingID string) (bool, error) {
	return storage.MeetingSummarized(ctx, t.db, meetingID)
}

func (t *txStore) HasOpenJob(ctx context.Context, sourceURL string) (bool, error) {
	return storage.HasOpenJob(ctx, t.db, sourceURL)
}

func (t *txStore) Enqueue(ctx context.Context, sourceURL, meetingID, banana string, priority int) (bool, error) {
	return storage.Enqueue(ctx, t.db, sourceURL, meetingID, banana, priority)
}
