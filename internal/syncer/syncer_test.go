package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/storage"
)

// fakeStore is an in-memory TxStore. It ignores transactionality: each
// test drives one syncer call at a time.
type fakeStore struct {
	meetings    map[string]string // id -> digest
	summarized  map[string]bool
	items       map[string][]civic.AgendaItem
	matters     map[string]civic.Matter
	appearances map[[2]string]bool // (matter, meeting)
	jobs        map[string]civic.JobStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetings:    map[string]string{},
		summarized:  map[string]bool{},
		items:       map[string][]civic.AgendaItem{},
		matters:     map[string]civic.Matter{},
		appearances: map[[2]string]bool{},
		jobs:        map[string]civic.JobStatus{},
	}
}

func (f *fakeStore) UpsertMeeting(_ context.Context, m civic.Meeting, digest string) (storage.ChangeKind, error) {
	prior, ok := f.meetings[m.ID]
	f.meetings[m.ID] = digest
	switch {
	case !ok:
		return storage.ChangeNew, nil
	case prior == digest:
		return storage.ChangeNone, nil
	default:
		return storage.ChangeUpdated, nil
	}
}

func (f *fakeStore) UpsertItems(_ context.Context, meetingID string, items []civic.AgendaItem) error {
	f.items[meetingID] = items
	return nil
}

func (f *fakeStore) ReplaceItemTopics(context.Context, string, []string) error    { return nil }
func (f *fakeStore) ReplaceMeetingTopics(context.Context, string, []string) error { return nil }

func (f *fakeStore) MatterExists(_ context.Context, id string) (bool, error) {
	_, ok := f.matters[id]
	return ok, nil
}

func (f *fakeStore) CreateMatter(_ context.Context, m civic.Matter) error {
	if _, ok := f.matters[m.ID]; !ok {
		m.AppearanceCount = 1
		f.matters[m.ID] = m
	}
	return nil
}

func (f *fakeStore) BumpMatter(_ context.Context, id string, seenAt time.Time, _ []civic.Attachment, _ string) (int, error) {
	m := f.matters[id]
	m.AppearanceCount++
	if seenAt.After(m.LastSeen) {
		m.LastSeen = seenAt
	}
	f.matters[id] = m
	return m.AppearanceCount, nil
}

func (f *fakeStore) AppearanceExists(_ context.Context, matterID, meetingID string) (bool, error) {
	return f.appearances[[2]string{matterID, meetingID}], nil
}

func (f *fakeStore) InsertAppearance(_ context.Context, a civic.MatterAppearance) error {
	f.appearances[[2]string{a.MatterID, a.MeetingID}] = true
	return nil
}

func (f *fakeStore) MeetingSummarized(_ context.Context, meetingID string) (bool, error) {
	return f.summarized[meetingID], nil
}

func (f *fakeStore) HasOpenJob(_ context.Context, sourceURL string) (bool, error) {
	st, ok := f.jobs[sourceURL]
	return ok && (st == civic.JobPending || st == civic.JobProcessing), nil
}

func (f *fakeStore) Enqueue(_ context.Context, sourceURL, _, _ string, _ int) (bool, error) {
	if _, ok := f.jobs[sourceURL]; ok {
		return false, nil
	}
	f.jobs[sourceURL] = civic.JobPending
	return true, nil
}

func newTestSyncer(f *fakeStore) *Syncer {
	return NewWithTx(func(ctx context.Context, fn func(TxStore) error) error {
		return fn(f)
	}, zap.NewNop())
}

func testCity() civic.City {
	return civic.City{Banana: "oaklandCA", Slug: "oakland", Vendor: civic.VendorLegistar, Status: civic.CityActive}
}

func testMeeting() civic.Meeting {
	return civic.Meeting{
		VendorID:  "8800",
		Title:     "City Council",
		Start:     time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC),
		AgendaURL: "https://oakland.legistar.com/MeetingDetail.aspx?ID=8800",
		Items: []civic.AgendaItem{
			{VendorItemID: "1", Title: "Ordinance amending the code", Sequence: 1, MatterFile: "24-0815", MatterType: "Ordinance"},
			{VendorItemID: "2", Title: "Public comment", Sequence: 2},
		},
	}
}

func TestSyncMeetingStoresAndEnqueues(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)

	stats, err := s.SyncMeeting(context.Background(), testCity(), testMeeting())
	require.NoError(t, err)

	assert.True(t, stats.New)
	assert.True(t, stats.Enqueued)
	assert.Equal(t, 2, stats.ItemsStored)
	assert.Equal(t, 1, stats.MattersTracked)
	assert.Len(t, f.matters, 1)
	assert.Len(t, f.jobs, 1)
}

func TestSyncMeetingIsIdempotent(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)
	city := testCity()

	_, err := s.SyncMeeting(context.Background(), city, testMeeting())
	require.NoError(t, err)
	var before int
	for _, m := range f.matters {
		before = m.AppearanceCount
	}

	stats, err := s.SyncMeeting(context.Background(), city, testMeeting())
	require.NoError(t, err)

	assert.False(t, stats.New)
	assert.False(t, stats.Changed)
	assert.False(t, stats.Enqueued, "unchanged re-sync must not enqueue")
	assert.Len(t, f.jobs, 1)
	for _, m := range f.matters {
		assert.Equal(t, before, m.AppearanceCount, "appearance count must not move on replay")
	}
}

func TestSyncMeetingDetectsChange(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)
	city := testCity()

	_, err := s.SyncMeeting(context.Background(), city, testMeeting())
	require.NoError(t, err)

	changed := testMeeting()
	changed.PacketURL = "https://oakland.legistar.com/View.ashx?M=A&ID=8800"
	stats, err := s.SyncMeeting(context.Background(), city, changed)
	require.NoError(t, err)

	assert.True(t, stats.Changed)
	assert.False(t, stats.New)
}

func TestMatterAppearanceAcrossMeetings(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)
	city := testCity()

	first := testMeeting()
	_, err := s.SyncMeeting(context.Background(), city, first)
	require.NoError(t, err)

	second := testMeeting()
	second.VendorID = "8900"
	second.Start = first.Start.AddDate(0, 0, 14)
	_, err = s.SyncMeeting(context.Background(), city, second)
	require.NoError(t, err)

	require.Len(t, f.matters, 1)
	for _, m := range f.matters {
		assert.Equal(t, 2, m.AppearanceCount)
		assert.Equal(t, second.Start, m.LastSeen)
	}
	assert.Len(t, f.appearances, 2)
}

func TestSkippedMatterTypesAreNotTracked(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)

	m := testMeeting()
	m.Items = []civic.AgendaItem{
		{VendorItemID: "1", Title: "Approval of minutes MIN-2026-03", Sequence: 1, MatterFile: "MIN-2026-03", MatterType: "Minutes"},
	}
	stats, err := s.SyncMeeting(context.Background(), testCity(), m)
	require.NoError(t, err)

	assert.Zero(t, stats.MattersTracked)
	assert.Empty(t, f.matters)
	assert.Equal(t, 1, stats.ItemsStored, "item itself is still stored")
}

func TestMeetingWithoutSourceOrItemsIsStoredNotEnqueued(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)

	m := civic.Meeting{VendorID: "x1", Title: "Closed Session", Start: time.Now()}
	stats, err := s.SyncMeeting(context.Background(), testCity(), m)
	require.NoError(t, err)

	assert.False(t, stats.Enqueued)
	assert.Equal(t, 1, stats.MeetingsSkipped)
	assert.Len(t, f.meetings, 1)
	assert.Empty(t, f.jobs)
}

func TestSummarizedMeetingIsNotReenqueued(t *testing.T) {
	f := newFakeStore()
	s := newTestSyncer(f)
	city := testCity()
	m := testMeeting()
	f.summarized[civic.MeetingID(city.Banana, m.VendorID)] = true

	stats, err := s.SyncMeeting(context.Background(), city, m)
	require.NoError(t, err)
	assert.False(t, stats.Enqueued)
	assert.Empty(t, f.jobs)
}

func TestDedupItemsKeepsMostComplete(t *testing.T) {
	items := []civic.AgendaItem{
		{VendorItemID: "1", Title: "Consent: ORD-2024-12", Sequence: 1, MatterFile: "ORD-2024-12"},
		{VendorItemID: "2", Title: "Second reading ORD-2024-12", Sequence: 2, MatterFile: "ORD-2024-12",
			AgendaNumber: "7.B", Attachments: []civic.Attachment{{Name: "Report", URL: "https://x/1"}}},
		{VendorItemID: "3", Title: "Adjournment", Sequence: 3},
	}

	kept, dupes := DedupItems(items)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, dupes)
	assert.Equal(t, "2", kept[0].VendorItemID, "more complete duplicate wins")
	assert.Equal(t, []int{1, 2}, []int{kept[0].Sequence, kept[1].Sequence}, "sequences renumbered densely")
}

func TestDedupItemsPassesNullKeyed(t *testing.T) {
	items := []civic.AgendaItem{
		{VendorItemID: "1", Title: "Public comment", Sequence: 1},
		{VendorItemID: "2", Title: "Open forum", Sequence: 2},
	}
	kept, dupes := DedupItems(items)
	assert.Len(t, kept, 2)
	assert.Zero(t, dupes)
}
