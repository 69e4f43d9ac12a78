package civic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeetingIDStable(t *testing.T) {
	a := MeetingID("paloaltoCA", "12345")
	b := MeetingID("paloaltoCA", "12345")
	assert.Equal(t, a, b)
	assert.Equal(t, "paloaltoCA_12345", a)
}

func TestMeetingIDFallback(t *testing.T) {
	// Unsafe characters force the digest path.
	id := MeetingID("chicagoIL", "O2025-0012 (Amended)")
	require.Contains(t, id, "chicagoIL_")
	assert.Len(t, id, len("chicagoIL_")+8)

	// Same input, same digest.
	assert.Equal(t, id, MeetingID("chicagoIL", "O2025-0012 (Amended)"))

	// Empty vendor id still yields a usable id.
	empty := MeetingID("berkeleyCA", "")
	assert.Contains(t, empty, "berkeleyCA_")
}

func TestMatterIDNormalizesSeparators(t *testing.T) {
	a := MatterID("fremontCA", "COF 2025 #141", "", "")
	b := MatterID("fremontCA", "COF-2025-141", "", "")
	assert.Equal(t, a, b)
	assert.Equal(t, "fremontCA_COF-2025-141", a)
}

func TestMatterIDHashFallback(t *testing.T) {
	a := MatterID("paloaltoCA", "", "9981", "Approve budget amendment")
	b := MatterID("paloaltoCA", "", "9981", "Approve budget amendment")
	assert.Equal(t, a, b)
	assert.Contains(t, a, "paloaltoCA_m")

	c := MatterID("paloaltoCA", "", "9982", "Approve budget amendment")
	assert.NotEqual(t, a, c)
}

func TestAttachmentHashOrderIndependent(t *testing.T) {
	a := []Attachment{
		{Name: "Staff Report", URL: "https://x/1.pdf"},
		{Name: "Resolution", URL: "https://x/2.pdf"},
	}
	b := []Attachment{
		{Name: "Resolution", URL: "https://x/2.pdf"},
		{Name: "Staff Report", URL: "https://x/1.pdf"},
	}
	assert.Equal(t, AttachmentHash(a), AttachmentHash(b))
	assert.Empty(t, AttachmentHash(nil))

	c := append([]Attachment{}, a...)
	c[0].URL = "https://x/1-rev.pdf"
	assert.NotEqual(t, AttachmentHash(a), AttachmentHash(c))
}

func TestFallbackVendorID(t *testing.T) {
	a := FallbackVendorID("cityofpaloalto", "2026-02-24", "City Council")
	assert.Len(t, a, 8)
	assert.Equal(t, a, FallbackVendorID("cityofpaloalto", "2026-02-24", "City Council"))
	assert.NotEqual(t, a, FallbackVendorID("cityofpaloalto", "2026-02-25", "City Council"))
}

func TestMatterKey(t *testing.T) {
	it := AgendaItem{MatterID: "77", MatterFile: "RES-2025-1"}
	assert.Equal(t, "77", it.MatterKey())
	it.MatterID = ""
	assert.Equal(t, "RES-2025-1", it.MatterKey())
	assert.True(t, it.HasMatter())
}
