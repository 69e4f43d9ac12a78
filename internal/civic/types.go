// Package civic defines the shared domain model: cities, meetings, agenda
// items, legislative matters, and the queue rows that drive downstream
// summarization. All other packages exchange these types; none of them
// carry persistence or vendor-specific details.
package civic

import (
	"time"
)

// Vendor identifies the civic-tech platform a city publishes through.
type Vendor string

const (
	VendorPrimeGov    Vendor = "primegov"
	VendorLegistar    Vendor = "legistar"
	VendorGranicus    Vendor = "granicus"
	VendorCivicClerk  Vendor = "civicclerk"
	VendorCivicPlus   Vendor = "civicplus"
	VendorCivicEngage Vendor = "civicengage"
	VendorEscribe     Vendor = "escribe"
	VendorIQM2        Vendor = "iqm2"
	VendorOnBase      Vendor = "onbase"
	VendorNovusAgenda Vendor = "novusagenda"
	VendorMunicode    Vendor = "municode"
	VendorChicago     Vendor = "chicago"
	VendorBerkeley    Vendor = "berkeley"
	VendorMenloPark   Vendor = "menlopark"
)

// AllVendors lists every vendor tag with a registered adapter.
var AllVendors = []Vendor{
	VendorPrimeGov, VendorLegistar, VendorGranicus, VendorCivicClerk,
	VendorCivicPlus, VendorCivicEngage, VendorEscribe, VendorIQM2,
	VendorOnBase, VendorNovusAgenda, VendorMunicode, VendorChicago,
	VendorBerkeley, VendorMenloPark,
}

// CityStatus gates whether a city participates in sync passes.
type CityStatus string

const (
	CityActive   CityStatus = "active"
	CityInactive CityStatus = "inactive"
)

// MeetingStatus is derived from keywords in vendor titles and date fields.
// The zero value means the meeting is on as scheduled.
type MeetingStatus string

const (
	MeetingCancelled   MeetingStatus = "cancelled"
	MeetingPostponed   MeetingStatus = "postponed"
	MeetingDeferred    MeetingStatus = "deferred"
	MeetingRescheduled MeetingStatus = "rescheduled"
	MeetingRevised     MeetingStatus = "revised"
)

// ProcessingStatus tracks the external summarization processor's progress
// on a meeting.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// AttachmentType classifies an attachment by its URL or declared format.
type AttachmentType string

const (
	AttachmentPDF         AttachmentType = "pdf"
	AttachmentDoc         AttachmentType = "doc"
	AttachmentXLS         AttachmentType = "xls"
	AttachmentPPT         AttachmentType = "ppt"
	AttachmentSpreadsheet AttachmentType = "spreadsheet"
	AttachmentUnknown     AttachmentType = "unknown"
)

// MatterStatus is the lifecycle state of a legislative matter as mirrored
// from the vendor. The set is open-ended; these are the common values.
type MatterStatus string

const (
	MatterActive    MatterStatus = "active"
	MatterPassed    MatterStatus = "passed"
	MatterFailed    MatterStatus = "failed"
	MatterTabled    MatterStatus = "tabled"
	MatterWithdrawn MatterStatus = "withdrawn"
)

// JobStatus is the queue-row state machine.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobDeadLetter JobStatus = "dead_letter"
)

// Zipcode is one ZIP code attached to a city; at most one is primary.
type Zipcode struct {
	Code    string `json:"code"`
	Primary bool   `json:"primary,omitempty"`
}

// City is the root entity. Cities are created by admin imports and never
// deleted by the ingestion core.
type City struct {
	Banana     string     `json:"banana"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Vendor     Vendor     `json:"vendor"`
	Slug       string     `json:"slug"`
	County     string     `json:"county,omitempty"`
	Status     CityStatus `json:"status"`
	Population int        `json:"population,omitempty"`
	Zipcodes   []Zipcode  `json:"zipcodes,omitempty"`

	// LastSynced is nil for cities that have never completed a sync.
	LastSynced *time.Time `json:"last_synced,omitempty"`
}

// ParticipationInfo is structured contact/attendance info extracted from
// agenda prose.
type ParticipationInfo struct {
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	VirtualURL string   `json:"virtual_url,omitempty"`
	Hybrid     bool     `json:"hybrid,omitempty"`
	Members    []string `json:"members,omitempty"`
}

// Attachment is a value type embedded in agenda items and matters.
type Attachment struct {
	Name string         `json:"name"`
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
}

// AgendaItem is one line of a meeting's agenda. IDs are deterministic from
// the meeting id and the vendor's item id.
type AgendaItem struct {
	ID           string       `json:"id"`
	MeetingID    string       `json:"meeting_id"`
	VendorItemID string       `json:"vendor_item_id"`
	Title        string       `json:"title"`
	Sequence     int          `json:"sequence"`
	AgendaNumber string       `json:"agenda_number,omitempty"`
	MatterFile   string       `json:"matter_file,omitempty"`
	MatterID     string       `json:"matter_id,omitempty"`
	MatterType   string       `json:"matter_type,omitempty"`
	Sponsors     []string     `json:"sponsors,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Description  string       `json:"description,omitempty"`
	Section      string       `json:"section,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Topics       []string     `json:"topics,omitempty"`

	// AttachmentHash is a stable digest over the ordered (name, URL)
	// pairs; used for change detection on matters.
	AttachmentHash string `json:"attachment_hash,omitempty"`

	QualityScore *float64 `json:"quality_score,omitempty"`
	RatingCount  int      `json:"rating_count,omitempty"`
}

// HasMatter reports whether the item carries any matter reference.
func (it *AgendaItem) HasMatter() bool {
	return it.MatterID != "" || it.MatterFile != ""
}

// MatterKey returns the grouping key used for within-meeting dedup:
// the vendor matter id when present, else the matter file.
func (it *AgendaItem) MatterKey() string {
	if it.MatterID != "" {
		return it.MatterID
	}
	return it.MatterFile
}

// Meeting is both the adapter DTO and the stored record. Adapters populate
// the vendor-facing fields (VendorID, Title, Start, URLs, Status, Items);
// the sync orchestrator assigns ID and Banana and persists the rest.
type Meeting struct {
	ID       string `json:"id"`
	Banana   string `json:"banana"`
	VendorID string `json:"vendor_id"`
	Title    string `json:"title"`

	// Start is local civic time; stored without timezone conversion.
	Start time.Time `json:"start"`

	AgendaURL string `json:"agenda_url,omitempty"`
	PacketURL string `json:"packet_url,omitempty"`
	Location  string `json:"location,omitempty"`

	Status        MeetingStatus      `json:"status,omitempty"`
	Participation *ParticipationInfo `json:"participation,omitempty"`

	Summary          string           `json:"summary,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status,omitempty"`
	ProcessingMethod string           `json:"processing_method,omitempty"`
	ProcessingTime   *time.Time       `json:"processing_time,omitempty"`

	CommitteeID string   `json:"committee_id,omitempty"`
	Topics      []string `json:"topics,omitempty"`

	Items []AgendaItem `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// SourceURL returns the URL summarization should be derived from:
// the agenda HTML when present, else the packet PDF.
func (m *Meeting) SourceURL() string {
	if m.AgendaURL != "" {
		return m.AgendaURL
	}
	return m.PacketURL
}

// Matter is a legislative matter tracked across meetings within one city.
// Matters are created on first sighting and never deleted.
type Matter struct {
	ID       string `json:"id"`
	Banana   string `json:"banana"`
	File     string `json:"matter_file,omitempty"`
	VendorID string `json:"matter_id,omitempty"`
	Type     string `json:"matter_type,omitempty"`
	Title    string `json:"title"`

	Sponsors []string `json:"sponsors,omitempty"`

	CanonicalSummary string   `json:"canonical_summary,omitempty"`
	CanonicalTopics  []string `json:"canonical_topics,omitempty"`

	// Attachments mirror the most recent appearance's list.
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	AppearanceCount int       `json:"appearance_count"`

	Status        MatterStatus `json:"status,omitempty"`
	FinalVoteDate *time.Time   `json:"final_vote_date,omitempty"`
}

// MatterAppearance links a matter to one (meeting, item) sighting.
// Unique per (matter, meeting, item).
type MatterAppearance struct {
	MatterID    string    `json:"matter_id"`
	MeetingID   string    `json:"meeting_id"`
	ItemID      string    `json:"item_id"`
	AppearedAt  time.Time `json:"appeared_at"`
	Committee   string    `json:"committee,omitempty"`
	CommitteeID string    `json:"committee_id,omitempty"`
	Sequence    int       `json:"sequence,omitempty"`
	VoteOutcome string    `json:"vote_outcome,omitempty"`
	VoteTally   string    `json:"vote_tally,omitempty"`
}

// Committee is a per-city body (council, planning commission, ...).
type Committee struct {
	ID     string `json:"id"`
	Banana string `json:"banana"`
	Name   string `json:"name"`
}

// CouncilMember is a roster entry with membership history.
type CouncilMember struct {
	ID       string     `json:"id"`
	Banana   string     `json:"banana"`
	Name     string     `json:"name"`
	Role     string     `json:"role,omitempty"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// QueueJob is one pending unit of summarization work. At most one job
// exists per source URL.
type QueueJob struct {
	ID          string            `json:"id"`
	SourceURL   string            `json:"source_url"`
	MeetingID   string            `json:"meeting_id,omitempty"`
	Banana      string            `json:"banana,omitempty"`
	Status      JobStatus         `json:"status"`
	Priority    int               `json:"priority"`
	RetryCount  int               `json:"retry_count"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	FailedAt    *time.Time        `json:"failed_at,omitempty"`
	ErrorMsg    string            `json:"error_message,omitempty"`
	Metadata    map[string]string `json:"processing_metadata,omitempty"`
}

// SyncStatus is the outcome class of one city's sync attempt.
type SyncStatus string

const (
	SyncCompleted SyncStatus = "completed"
	SyncSkipped   SyncStatus = "skipped"
	SyncFailed    SyncStatus = "failed"
)

// SyncResult is the per-city record produced by a sync pass.
type SyncResult struct {
	Banana            string        `json:"banana"`
	Status            SyncStatus    `json:"status"`
	MeetingsFound     int           `json:"meetings_found"`
	MeetingsProcessed int           `json:"meetings_processed"`
	MeetingsSkipped   int           `json:"meetings_skipped"`
	Duration          time.Duration `json:"duration"`
	Error             string        `json:"error,omitempty"`
}

// StoreStats summarizes what one meeting's sync wrote.
type StoreStats struct {
	Changed          bool `json:"changed"`
	New              bool `json:"new"`
	ItemsStored      int  `json:"items_stored"`
	MattersTracked   int  `json:"matters_tracked"`
	MattersDuplicate int  `json:"matters_duplicate"`
	MeetingsSkipped  int  `json:"meetings_skipped"`
	Enqueued         bool `json:"enqueued"`
}

// Add accumulates another meeting's stats into s.
func (s *StoreStats) Add(o StoreStats) {
	s.ItemsStored += o.ItemsStored
	s.MattersTracked += o.MattersTracked
	s.MattersDuplicate += o.MattersDuplicate
	s.MeetingsSkipped += o.MeetingsSkipped
}
