// Package onbase integrates Hyland OnBase agenda portals. OnBase
// deployments have no derivable URL scheme at all, so every city lists
// its full site URLs in data/onbase_sites.json; construction fails for
// unconfigured cities. Sites are tried in order until one responds.
package onbase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorOnBase, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one OnBase city.
type Adapter struct {
	vendors.Base
	sites []string
}

// New fails fast when the city has no configured sites.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	sites := deps.OnBaseSites[city.Banana]
	if len(sites) == 0 {
		return nil, fmt.Errorf("onbase: no sites configured for %s", city.Banana)
	}
	return &Adapter{Base: vendors.NewBase(city, deps), sites: sites}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorOnBase }

// FetchMeetings tries each configured site until one yields meetings.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	var lastErr error
	for _, site := range a.sites {
		meetings, err := a.fetchSite(ctx, site)
		if err != nil {
			lastErr = err
			a.Log.Warn("onbase site failed", zap.String("site", site), zap.Error(err))
			continue
		}
		if len(meetings) > 0 {
			return meetings, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (a *Adapter) fetchSite(ctx context.Context, site string) ([]civic.Meeting, error) {
	raw, err := a.Get(ctx, site)
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var meetings []civic.Meeting
	seen := map[string]bool{}
	for _, row := range htmlutil.FindAll(root, htmlutil.ByTag("tr")) {
		m, ok := a.parseRow(site, row)
		if !ok || seen[m.VendorID] {
			continue
		}
		seen[m.VendorID] = true
		meetings = append(meetings, m)
	}
	return meetings, nil
}

// parseRow extracts one meeting row: a date cell, a name cell, and
// ViewMeetingAgenda / ViewMeetingAgendaItem document links.
func (a *Adapter) parseRow(site string, row *html.Node) (civic.Meeting, bool) {
	cells := htmlutil.FindAll(row, htmlutil.ByTag("td"))
	if len(cells) < 2 {
		return civic.Meeting{}, false
	}

	var m civic.Meeting
	for _, cell := range cells {
		txt := htmlutil.Text(cell)
		if m.Start.IsZero() {
			if t := vendors.ParseDate(txt); t != nil {
				m.Start = *t
				continue
			}
		}
		if m.Title == "" && txt != "" {
			m.Title = txt
		}
	}
	for _, link := range htmlutil.Links(row) {
		href := htmlutil.AbsoluteURL(site, link[0])
		lower := strings.ToLower(href)
		switch {
		case strings.Contains(lower, "viewmeetingagendaitem"):
			// Item links appear on detail pages, not the listing.
		case strings.Contains(lower, "viewmeetingagenda"):
			m.AgendaURL = href
			if u, err := url.Parse(href); err == nil {
				if id := u.Query().Get("meetingID"); id != "" {
					m.VendorID = id
				}
			}
		case strings.Contains(lower, "viewmeetingpacket") || strings.Contains(lower, "compileddocument"):
			m.PacketURL = href
		}
	}
	if m.Title == "" || m.Start.IsZero() || (m.AgendaURL == "" && m.PacketURL == "") {
		return civic.Meeting{}, false
	}
	if m.VendorID == "" {
		m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	}
	return m, true
}
