// Package civicplus integrates CivicPlus AgendaCenter sites. CivicPlus
// deployments live on unpredictable domains, so the adapter probes a
// prioritized candidate list on first use and caches the winner.
package civicplus

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorCivicPlus, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one CivicPlus city.
type Adapter struct {
	vendors.Base
}

// New validates construction.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("civicplus: city %s has no slug", city.Banana)
	}
	if deps.Discovery == nil {
		return nil, fmt.Errorf("civicplus: discovery cache not configured")
	}
	return &Adapter{Base: vendors.NewBase(city, deps)}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorCivicPlus }

// candidates returns the base URLs to probe, most likely first.
func (a *Adapter) candidates() []string {
	slug := a.City.Slug
	return []string{
		fmt.Sprintf("https://%s.civicplus.com", slug),
		fmt.Sprintf("https://www.%s.gov", slug),
		fmt.Sprintf("https://%s.gov", slug),
		fmt.Sprintf("https://www.%s.org", slug),
		fmt.Sprintf("https://%s.org", slug),
		fmt.Sprintf("https://www.cityof%s.com", slug),
	}
}

// looksLikeAgendaCenter recognizes the AgendaCenter page body.
func looksLikeAgendaCenter(body string) bool {
	return strings.Contains(body, "AgendaCenter") &&
		(strings.Contains(body, "ViewFile") || strings.Contains(body, "agendaTable"))
}

// viewFileRe matches AgendaCenter file links:
// /AgendaCenter/ViewFile/Agenda/_02242026-1342
var viewFileRe = regexp.MustCompile(`/AgendaCenter/ViewFile/(Agenda|Minutes)/_(\d{8})-(\d+)`)

// FetchMeetings discovers the site, loads /AgendaCenter, and parses the
// per-department meeting tables.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	base, err := a.DiscoverBase(ctx, a.Deps.Discovery, a.candidates(), "/AgendaCenter", looksLikeAgendaCenter)
	if err != nil {
		return nil, err
	}

	raw, err := a.Get(ctx, strings.TrimSuffix(base, "/")+"/AgendaCenter")
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
		m, ok := a.parseRow(base, row)
		if !ok || seen[m.VendorID] {
			continue
		}
		seen[m.VendorID] = true
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (a *Adapter) parseRow(base string, row *html.Node) (civic.Meeting, bool) {
	links := htmlutil.Links(row)
	if len(links) == 0 {
		return civic.Meeting{}, false
	}

	var agendaURL, fileID string
	var dateDigits string
	for _, link := range links {
		m := viewFileRe.FindStringSubmatch(link[0])
		if m == nil || m[1] != "Agenda" {
			continue
		}
		agendaURL = htmlutil.AbsoluteURL(base, link[0])
		dateDigits = m[2]
		fileID = m[2] + "-" + m[3]
		break
	}
	if agendaURL == "" {
		return civic.Meeting{}, false
	}

	// Dates are encoded MMDDYYYY in the file id; the row text is the
	// meeting title.
	start := vendors.ParseDate(fmt.Sprintf("%s/%s/%s", dateDigits[:2], dateDigits[2:4], dateDigits[4:]))
	if start == nil {
		return civic.Meeting{}, false
	}
	title := htmlutil.Text(row)
	if idx := strings.Index(title, "Agenda"); idx > 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if title == "" {
		return civic.Meeting{}, false
	}

	return civic.Meeting{
		VendorID:  fileID,
		Title:     title,
		Start:     *start,
		PacketURL: agendaURL,
	}, true
}
