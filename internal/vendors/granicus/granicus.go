// Package granicus integrates the Granicus ViewPublisher calendar. The
// calendar lives behind a per-city integer view id that cannot be
// derived from the slug; ids are checked into data/granicus_view_ids.json
// and missing entries fail adapter construction.
package granicus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorGranicus, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one Granicus city.
type Adapter struct {
	vendors.Base
	baseURL string
	viewID  int
}

// New fails fast when the city has no configured view id.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	base := fmt.Sprintf("https://%s.granicus.com", city.Slug)
	viewID, ok := deps.GranicusViewIDs[base]
	if !ok {
		return nil, fmt.Errorf("granicus: no view id configured for %s (%s)", city.Banana, base)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: base,
		viewID:  viewID,
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorGranicus }

// FetchMeetings parses the ViewPublisher table. Upcoming and archived
// meetings share one page, split into sections.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	listURL := fmt.Sprintf("%s/ViewPublisher.php?view_id=%d", a.baseURL, a.viewID)
	raw, err := a.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var meetings []civic.Meeting
	for _, row := range htmlutil.FindAll(root, htmlutil.ByTag("tr")) {
		m, ok := a.parseRow(row)
		if !ok {
			continue
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

// parseRow extracts one meeting from a calendar row: name cell, date
// cell, then agenda/minutes/video links.
func (a *Adapter) parseRow(row *html.Node) (civic.Meeting, bool) {
	cells := htmlutil.FindAll(row, htmlutil.ByTag("td"))
	if len(cells) < 2 {
		return civic.Meeting{}, false
	}

	title := htmlutil.Text(cells[0])
	var start *time.Time
	for _, cell := range cells[1:] {
		if t := vendors.ParseDate(htmlutil.Text(cell)); t != nil {
			start = t
			break
		}
	}
	if title == "" || start == nil {
		return civic.Meeting{}, false
	}

	m := civic.Meeting{
		Title: title,
		Start: *start,
	}
	for _, link := range htmlutil.Links(row) {
		href := htmlutil.AbsoluteURL(a.baseURL, link[0])
		text := strings.ToLower(link[1])
		switch {
		case strings.Contains(href, "AgendaViewer.php"):
			m.AgendaURL = href
			if id := metaParam(href, "event_id"); id != "" {
				m.VendorID = id
			}
		case strings.Contains(href, "MetaViewer.php") && strings.Contains(text, "agenda"):
			// MetaViewer links redirect to the S3-hosted agenda PDF.
			if m.PacketURL == "" {
				m.PacketURL = href
			}
		}
	}
	if m.AgendaURL == "" && m.PacketURL == "" {
		return civic.Meeting{}, false
	}
	if m.VendorID == "" {
		m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	}
	return m, true
}

func metaParam(rawURL, key string) string {
	idx := strings.Index(rawURL, key+"=")
	if idx < 0 {
		return ""
	}
	val := rawURL[idx+len(key)+1:]
	if amp := strings.IndexByte(val, '&'); amp >= 0 {
		val = val[:amp]
	}
	return val
}
