package citycustom

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorBerkeley, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return NewBerkeley(city, deps)
	})
}

const berkeleyBase = "https://berkeleyca.gov"

// Berkeley scrapes the council agenda listing on the city site.
type Berkeley struct {
	vendors.Base
}

// NewBerkeley validates construction.
func NewBerkeley(city civic.City, deps *vendors.Deps) (*Berkeley, error) {
	if city.Banana != "berkeleyCA" {
		return nil, fmt.Errorf("berkeley adapter configured for wrong city %s", city.Banana)
	}
	return &Berkeley{Base: vendors.NewBase(city, deps)}, nil
}

func (a *Berkeley) Vendor() civic.Vendor { return civic.VendorBerkeley }

// FetchMeetings parses the agenda listing rows. Each row is a views
// table row with a date, a meeting link and an agenda PDF link.
func (a *Berkeley) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	listURL := berkeleyBase + "/your-government/city-council/city-council-agendas"
	raw, err := a.Get(ctx, listURL)
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
		m, ok := a.parseRow(row)
		if !ok || seen[m.VendorID] {
			continue
		}
		seen[m.VendorID] = true
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (a *Berkeley) parseRow(row *html.Node) (civic.Meeting, bool) {
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
		href := htmlutil.AbsoluteURL(berkeleyBase, link[0])
		lower := strings.ToLower(link[1] + " " + href)
		switch {
		case strings.Contains(lower, ".pdf") && strings.Contains(lower, "agenda"):
			m.PacketURL = href
		case strings.Contains(href, "/city-council/") && m.AgendaURL == "":
			m.AgendaURL = href
			if m.Title == "" {
				m.Title = link[1]
			}
		}
	}
	if m.Title == "" || m.Start.IsZero() || (m.AgendaURL == "" && m.PacketURL == "") {
		return civic.Meeting{}, false
	}
	m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	return m, true
}
