// Package civicengage integrates CivicEngage calendar sites (the CMS
// half of CivicPlus). Like civicplus it discovers the working domain by
// probing; the calendar category id defaults but can be overridden per
// slug via data/civicengage_sites.json.
package civicengage

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
	vendors.Register(civic.VendorCivicEngage, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// defaultCategoryID is the "City Council" calendar category on most
// deployments.
const defaultCategoryID = 14

// Adapter fetches meetings for one CivicEngage city.
type Adapter struct {
	vendors.Base
	categoryID int
}

// New validates construction and applies the per-slug category
// override when one is configured.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("civicengage: city %s has no slug", city.Banana)
	}
	if deps.Discovery == nil {
		return nil, fmt.Errorf("civicengage: discovery cache not configured")
	}
	category := defaultCategoryID
	if id, ok := deps.CivicEngage[city.Slug]; ok {
		category = id
	}
	return &Adapter{Base: vendors.NewBase(city, deps), categoryID: category}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorCivicEngage }

func (a *Adapter) candidates() []string {
	slug := a.City.Slug
	return []string{
		fmt.Sprintf("https://www.%s.gov", slug),
		fmt.Sprintf("https://%s.gov", slug),
		fmt.Sprintf("https://www.%s.org", slug),
		fmt.Sprintf("https://www.%s.com", slug),
	}
}

func looksLikeCivicEngage(body string) bool {
	return strings.Contains(body, "calendar.aspx") || strings.Contains(body, "Calendar.aspx")
}

// FetchMeetings loads the category calendar and parses event rows.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	base, err := a.DiscoverBase(ctx, a.Deps.Discovery, a.candidates(), "/calendar.aspx", looksLikeCivicEngage)
	if err != nil {
		return nil, err
	}

	calURL := fmt.Sprintf("%s/calendar.aspx?CID=%d", strings.TrimSuffix(base, "/"), a.categoryID)
	raw, err := a.Get(ctx, calURL)
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var meetings []civic.Meeting
	for _, node := range htmlutil.FindAll(root, htmlutil.ByTagClass("div", "calendarEvent")) {
		if m, ok := a.parseEvent(base, node); ok {
			meetings = append(meetings, m)
		}
	}
	// Older deployments render events as list items instead.
	if len(meetings) == 0 {
		for _, node := range htmlutil.FindAll(root, htmlutil.ByTagClass("li", "calendar-item")) {
			if m, ok := a.parseEvent(base, node); ok {
				meetings = append(meetings, m)
			}
		}
	}
	return meetings, nil
}

func (a *Adapter) parseEvent(base string, node *html.Node) (civic.Meeting, bool) {
	title := ""
	if t := htmlutil.FindFirst(node, htmlutil.ByTagClass("span", "eventTitle")); t != nil {
		title = htmlutil.Text(t)
	}
	var agendaURL string
	for _, link := range htmlutil.Links(node) {
		href := htmlutil.AbsoluteURL(base, link[0])
		if title == "" && strings.Contains(href, "Detail.aspx") {
			title = link[1]
		}
		if strings.Contains(href, "AgendaCenter") || strings.Contains(strings.ToLower(link[1]), "agenda") {
			agendaURL = href
		}
	}

	dateText := ""
	if d := htmlutil.FindFirst(node, htmlutil.ByTagClass("span", "eventDate")); d != nil {
		dateText = htmlutil.Text(d)
	} else {
		dateText = htmlutil.Text(node)
	}
	start := vendors.ParseDate(dateText)
	if title == "" || start == nil {
		return civic.Meeting{}, false
	}

	m := civic.Meeting{
		Title:     title,
		Start:     *start,
		AgendaURL: agendaURL,
	}
	m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	return m, true
}
