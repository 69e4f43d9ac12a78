package primegov

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/session"
	"github.com/civiclight/civiclight/internal/vendors"
)

func testCity() civic.City {
	return civic.City{Banana: "burbankCA", Slug: "burbank", Vendor: civic.VendorPrimeGov}
}

func testDeps(t *testing.T) *vendors.Deps {
	t.Helper()
	pool := session.NewPool()
	t.Cleanup(pool.CloseAll)
	return &vendors.Deps{Sessions: pool, Log: zap.NewNop()}
}

func TestFetchMeetingsDocumentMapping(t *testing.T) {
	soon := time.Now().Add(48 * time.Hour).Format("2006-01-02T15:04:05")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/PublicPortal/ListUpcomingMeetings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"id": 7001,
			"title": "City Council Regular Meeting",
			"dateTime": "` + soon + `",
			"documentList": [
				{"templateName": "HTML Agenda", "templateId": 42},
				{"templateName": "Agenda Packet", "templateId": 99, "compileOutputType": "pdf"}
			]
		}]`))
	})
	mux.HandleFunc("/api/v2/PublicPortal/ListArchivedMeetings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/Portal/Meeting", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<p>This is a hybrid meeting. Join via Zoom at
			https://burbank.zoom.us/j/123456789 or call (818) 555-0100.
			Written comment: cityclerk@burbankca.gov</p>
			<div class="agenda-item" data-item-id="55" data-item-number="3.A">
				<span class="item-title">Resolution No. 2026-14 approving the budget</span>
				<a href="/Public/Download?id=9">Staff Report</a>
			</div>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(testCity(), testDeps(t))
	require.NoError(t, err)
	a.baseURL = srv.URL

	meetings, err := a.FetchMeetings(context.Background(), vendors.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, "7001", m.VendorID)
	assert.Equal(t, "City Council Regular Meeting", m.Title)
	assert.Equal(t, srv.URL+"/Portal/Meeting?meetingTemplateId=42", m.AgendaURL)
	assert.Equal(t, srv.URL+"/Public/CompiledDocument?meetingTemplateId=99&compileOutputType=pdf", m.PacketURL)

	require.Len(t, m.Items, 1)
	item := m.Items[0]
	assert.Equal(t, "55", item.VendorItemID)
	assert.Equal(t, "3.A", item.AgendaNumber)
	assert.Equal(t, "2026-14", item.MatterFile)
	require.Len(t, item.Attachments, 1)
	assert.Equal(t, srv.URL+"/Public/Download?id=9", item.Attachments[0].URL)

	require.NotNil(t, m.Participation)
	assert.Equal(t, "cityclerk@burbankca.gov", m.Participation.Email)
	assert.Equal(t, "(818) 555-0100", m.Participation.Phone)
	assert.Equal(t, "https://burbank.zoom.us/j/123456789", m.Participation.VirtualURL)
	assert.True(t, m.Participation.Hybrid)
}

func TestFetchMeetingsArchiveFailureIsNotFatal(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour).Format("2006-01-02T15:04:05")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/PublicPortal/ListUpcomingMeetings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 1, "title": "Planning Commission", "dateTime": "` + soon + `"}]`))
	})
	mux.HandleFunc("/api/v2/PublicPortal/ListArchivedMeetings", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(testCity(), testDeps(t))
	require.NoError(t, err)
	a.baseURL = srv.URL

	meetings, err := a.FetchMeetings(context.Background(), vendors.DefaultWindow)
	require.NoError(t, err)
	assert.Len(t, meetings, 1)
}

func TestNewRequiresSlug(t *testing.T) {
	_, err := New(civic.City{Banana: "nowhereXX"}, testDeps(t))
	assert.Error(t, err)
}
