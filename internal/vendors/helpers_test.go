package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
)

func TestParseMeetingStatus(t *testing.T) {
	cases := map[string]civic.MeetingStatus{
		"City Council (CANCELLED)":            civic.MeetingCancelled,
		"Planning Commission - Postponed":     civic.MeetingPostponed,
		"Budget Hearing DEFERRED to March":    civic.MeetingDeferred,
		"Special Meeting (Rescheduled)":       civic.MeetingRescheduled,
		"Agenda REVISED 2/20":                 civic.MeetingRevised,
		"Council Amendment Session - UPDATED": civic.MeetingRevised,
		"Regular City Council Meeting":        "",
		// Cancellation outranks reschedule when both appear.
		"Rescheduled meeting now CANCELED": civic.MeetingCancelled,
	}
	for title, want := range cases {
		assert.Equal(t, want, ParseMeetingStatus(title), title)
	}
}

func TestFilterItemsDropsProcedural(t *testing.T) {
	items := []civic.AgendaItem{
		{Title: "Call to Order", Sequence: 1},
		{Title: "Pledge of Allegiance", Sequence: 2},
		{Title: "Approval of Minutes", Sequence: 3},
		{Title: "RES-2025-123 Adopt budget", Sequence: 4, MatterFile: "RES-2025-123"},
		{Title: "Public Comment", Sequence: 5},
		{Title: "Zoning update for El Camino corridor", Sequence: 6},
		{Title: "Adjournment", Sequence: 7},
	}
	kept := FilterItems(items, zap.NewNop())
	require.Len(t, kept, 2)
	assert.Equal(t, "RES-2025-123 Adopt budget", kept[0].Title)
	assert.Equal(t, 1, kept[0].Sequence)
	assert.Equal(t, 2, kept[1].Sequence)
}

func TestFilterItemsKeepsProceduralWithMatter(t *testing.T) {
	// A matter reference always survives the skip set.
	items := []civic.AgendaItem{
		{Title: "Approval of Minutes", MatterFile: "MIN-2025-04"},
	}
	kept := FilterItems(items, zap.NewNop())
	require.Len(t, kept, 1)
}

func TestExtractMatterFile(t *testing.T) {
	cases := map[string]string{
		"BOA-0039-2025 Variance request":            "BOA-0039-2025",
		"Adopt RES-2025-123 approving the budget":   "RES-2025-123",
		"CUP25-00022 Conditional use permit":        "CUP25-00022",
		"COF 2025 #141 Street improvement contract": "COF-2025-141",
		"File 25-1234: Lease amendment":             "25-1234",
		"Second reading of BB107":                   "BB107",
		"Discussion of downtown parking":            "",
	}
	for title, want := range cases {
		assert.Equal(t, want, ExtractMatterFile(title), title)
	}
}

func TestMatterTypeFromFile(t *testing.T) {
	assert.Equal(t, "Resolution", MatterTypeFromFile("RES-2025-123"))
	assert.Equal(t, "Board of Adjustment", MatterTypeFromFile("BOA-0039-2025"))
	assert.Equal(t, "Conditional Use Permit", MatterTypeFromFile("CUP25-00022"))
	assert.Equal(t, "", MatterTypeFromFile("25-1234"))
	assert.Equal(t, "", MatterTypeFromFile("ZZZ-1-2025"))
}

func TestSkipMatterType(t *testing.T) {
	assert.True(t, SkipMatterType("Minutes"))
	assert.True(t, SkipMatterType("Proclamation"))
	assert.False(t, SkipMatterType("Resolution"))
	assert.False(t, SkipMatterType(""))
}

func TestExtractParticipation(t *testing.T) {
	text := `Members of the public may attend in person or join via Zoom at
https://cityofpaloalto.zoom.us/j/123456789. For questions email
city.clerk@cityofpaloalto.org or call (650) 329-2571. This is a hybrid
meeting. Councilmember Pat Burt and Mayor Lydia Kou will preside.`

	p := ExtractParticipation(text)
	require.NotNil(t, p)
	assert.Equal(t, "city.clerk@cityofpaloalto.org", p.Email)
	assert.Equal(t, "(650) 329-2571", p.Phone)
	assert.Equal(t, "https://cityofpaloalto.zoom.us/j/123456789", p.VirtualURL)
	assert.True(t, p.Hybrid)
	assert.Contains(t, p.Members, "Pat Burt")
	assert.Contains(t, p.Members, "Lydia Kou")
}

func TestExtractParticipationEmpty(t *testing.T) {
	assert.Nil(t, ExtractParticipation(""))
	assert.Nil(t, ExtractParticipation("The agenda packet is attached."))
}

func TestClassifyAttachment(t *testing.T) {
	cases := []struct {
		url, declared string
		want          civic.AttachmentType
	}{
		{"https://x/a.pdf", "", civic.AttachmentPDF},
		{"https://x/a.docx", "", civic.AttachmentDoc},
		{"https://x/a.xlsx", "", civic.AttachmentXLS},
		{"https://x/a.pptx", "", civic.AttachmentPPT},
		{"https://x/a.csv", "", civic.AttachmentSpreadsheet},
		{"https://x/download?format=pdf&id=9", "", civic.AttachmentPDF},
		{"https://x/blob/9", "application/pdf", civic.AttachmentPDF},
		{"https://x/blob/9", "", civic.AttachmentUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyAttachment(c.url, c.declared), c.url)
	}
}

func TestNewAttachmentNameFallback(t *testing.T) {
	a := NewAttachment("  Staff   Report ", "https://x/a.pdf", "")
	assert.Equal(t, "Staff Report", a.Name)

	b := NewAttachment("", "https://x/files/report.pdf", "")
	assert.Equal(t, "report.pdf", b.Name)
}
