package legistar

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
	return civic.City{Banana: "oaklandCA", Slug: "oakland", Vendor: civic.VendorLegistar}
}

func testDeps(t *testing.T) *vendors.Deps {
	t.Helper()
	pool := session.NewPool()
	t.Cleanup(pool.CloseAll)
	return &vendors.Deps{Sessions: pool, Log: zap.NewNop()}
}

func TestFetchMeetingsFromAPI(t *testing.T) {
	soon := time.Now().Add(72 * time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/oakland/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"EventId": 8800,
			"EventBodyId": 12,
			"EventBodyName": "City Council",
			"EventDate": "` + soon.Format("2006-01-02") + `T00:00:00",
			"EventTime": "6:30 PM",
			"EventLocation": "Council Chamber",
			"EventInSiteURL": "https://oakland.legistar.com/MeetingDetail.aspx?ID=8800"
		}]`))
	})
	mux.HandleFunc("/oakland/events/8800/eventitems", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"EventItemId": 301,
			"EventItemTitle": "Subject: Ordinance amending the municipal code",
			"EventItemAgendaSequence": 4,
			"EventItemAgendaNumber": "2.1",
			"EventItemMatterId": 5120,
			"EventItemMatterFile": "24-0815",
			"EventItemMatterType": "Ordinance",
			"EventItemMatterAttachments": [
				{"MatterAttachmentName": "Report", "MatterAttachmentHyperlink": "https://oakland.legistar.com/View.ashx?id=1"}
			]
		}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(testCity(), testDeps(t))
	require.NoError(t, err)
	a.apiBase = srv.URL

	meetings, err := a.FetchMeetings(context.Background(), vendors.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, "8800", m.VendorID)
	assert.Equal(t, "City Council", m.Title)
	assert.Equal(t, "12", m.CommitteeID)
	assert.Equal(t, 18, m.Start.Hour())

	require.Len(t, m.Items, 1)
	item := m.Items[0]
	assert.Equal(t, "5120", item.MatterID)
	assert.Equal(t, "24-0815", item.MatterFile)
	assert.Equal(t, 4, item.Sequence)
	assert.Len(t, item.Attachments, 1)
}

func TestFetchMeetingsFallsBackToCalendarHTML(t *testing.T) {
	soon := time.Now().Add(24 * time.Hour).Format("1/2/2006")

	mux := http.NewServeMux()
	mux.HandleFunc("/oakland/events", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token required", http.StatusForbidden)
	})
	mux.HandleFunc("/Calendar.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table>
			<tr class="rgRow">
				<td><a href="/MeetingDetail.aspx?ID=991">Rules Committee</a></td>
				<td>` + soon + `</td>
				<td><a href="/View.ashx?M=A&ID=991">Agenda</a></td>
			</tr>
		</table></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(testCity(), testDeps(t))
	require.NoError(t, err)
	a.apiBase = srv.URL
	a.webBase = srv.URL

	meetings, err := a.FetchMeetings(context.Background(), vendors.DefaultWindow)
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, "991", m.VendorID)
	assert.Equal(t, "Rules Committee", m.Title)
	assert.Contains(t, m.AgendaURL, "MeetingDetail.aspx")
	assert.Contains(t, m.PacketURL, "View.ashx")
}

func TestFetchMeetingsFallsBackOnZeroEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oakland/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/Calendar.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(testCity(), testDeps(t))
	require.NoError(t, err)
	a.apiBase = srv.URL
	a.webBase = srv.URL

	meetings, err := a.FetchMeetings(context.Background(), vendors.DefaultWindow)
	require.NoError(t, err)
	assert.Empty(t, meetings)
}

func TestWithToken(t *testing.T) {
	a := &Adapter{token: "secret"}
	assert.Equal(t, "https://x/events?token=secret", a.withToken("https://x/events"))
	assert.Equal(t, "https://x/events?a=1&token=secret", a.withToken("https://x/events?a=1"))

	a.token = ""
	assert.Equal(t, "https://x/events", a.withToken("https://x/events"))
}
