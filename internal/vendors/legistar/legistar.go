// Package legistar integrates Granicus Legistar. The web API serves
// OData-filtered events and per-event agenda items with matter metadata
// and attachments; a handful of deployments gate or disable the API, so
// the calendar HTML is kept as a fallback.
package legistar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorLegistar, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one Legistar client.
type Adapter struct {
	vendors.Base
	slug    string
	token   string
	apiBase string
	webBase string
}

// New validates construction. The API token is optional except for
// clients known to require one (NYC).
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("legistar: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		slug:    city.Slug,
		token:   deps.LegistarTokens[city.Slug],
		apiBase: "https://webapi.legistar.com/v1",
		webBase: fmt.Sprintf("https://%s.legistar.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorLegistar }

type apiEvent struct {
	EventID         int    `json:"EventId"`
	EventBodyID     int    `json:"EventBodyId"`
	EventBodyName   string `json:"EventBodyName"`
	EventDate       string `json:"EventDate"`
	EventTime       string `json:"EventTime"`
	EventLocation   string `json:"EventLocation"`
	EventAgendaFile string `json:"EventAgendaFile"`
	EventInSiteURL  string `json:"EventInSiteURL"`
}

type apiEventItem struct {
	EventItemID             int    `json:"EventItemId"`
	EventItemTitle          string `json:"EventItemTitle"`
	EventItemAgendaSequence int    `json:"EventItemAgendaSequence"`
	EventItemAgendaNumber   string `json:"EventItemAgendaNumber"`
	EventItemMatterID       int    `json:"EventItemMatterId"`
	EventItemMatterFile     string `json:"EventItemMatterFile"`
	EventItemMatterType     string `json:"EventItemMatterType"`
	EventItemMatterStatus   string `json:"EventItemMatterStatus"`

	EventItemMatterAttachments []apiAttachment `json:"EventItemMatterAttachments"`
}

type apiAttachment struct {
	MatterAttachmentName      string `json:"MatterAttachmentName"`
	MatterAttachmentHyperlink string `json:"MatterAttachmentHyperlink"`
}

func (a *Adapter) withToken(u string) string {
	if a.token == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(a.token)
}

// FetchMeetings queries the events API for the window; on an empty
// result or a gatekeeping status it falls back to the calendar HTML.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	now := time.Now()
	filter := fmt.Sprintf("EventDate ge datetime'%s' and EventDate lt datetime'%s'",
		window.Start(now).Format("2006-01-02"), window.End(now).Format("2006-01-02"))
	eventsURL := a.withToken(fmt.Sprintf("%s/%s/events?$filter=%s&$orderby=EventDate asc",
		a.apiBase, a.slug, url.QueryEscape(filter)))

	var events []apiEvent
	err := a.GetJSON(ctx, eventsURL, &events)
	if err != nil {
		if vendors.IsHTTPStatus(err, 400, 403, 404) {
			a.Log.Info("events API unavailable, falling back to calendar HTML", zap.Error(err))
			return a.fetchCalendarHTML(ctx)
		}
		return nil, err
	}
	if len(events) == 0 {
		a.Log.Info("events API returned zero events, falling back to calendar HTML")
		return a.fetchCalendarHTML(ctx)
	}

	meetings := make([]civic.Meeting, 0, len(events))
	for _, ev := range events {
		m, ok := a.convert(ev)
		if !ok {
			continue
		}
		meetings = append(meetings, m)
	}

	a.fetchItems(ctx, meetings)
	return meetings, nil
}

func (a *Adapter) convert(ev apiEvent) (civic.Meeting, bool) {
	date := vendors.ParseDate(ev.EventDate)
	if date == nil {
		a.Log.Warn("unparseable event date", zap.Int("event", ev.EventID), zap.String("date", ev.EventDate))
		return civic.Meeting{}, false
	}
	start := *date
	if t := vendors.ParseDate(date.Format("2006-01-02") + " " + ev.EventTime); t != nil {
		start = *t
	}

	m := civic.Meeting{
		VendorID:    strconv.Itoa(ev.EventID),
		Title:       ev.EventBodyName,
		Start:       start,
		Location:    ev.EventLocation,
		AgendaURL:   ev.EventInSiteURL,
		PacketURL:   ev.EventAgendaFile,
		CommitteeID: strconv.Itoa(ev.EventBodyID),
	}
	// InSite URLs are the HTML source of record; the agenda file is a
	// PDF. When only the PDF exists it is the packet.
	if m.AgendaURL == "" && m.PacketURL != "" && !strings.Contains(strings.ToLower(m.PacketURL), ".pdf") {
		m.AgendaURL, m.PacketURL = m.PacketURL, ""
	}
	return m, true
}

// fetchItems loads agenda items per event, bounded-concurrently. The
// attachments ride along on the eventitems call.
func (a *Adapter) fetchItems(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr
			}
			defer sem.Release(1)

			itemsURL := a.withToken(fmt.Sprintf("%s/%s/events/%s/eventitems?AgendaNote=1&MinutesNote=1&Attachments=1",
				a.apiBase, a.slug, meetings[i].VendorID))
			var rawItems []apiEventItem
			if err := a.GetJSON(gctx, itemsURL, &rawItems); err != nil {
				a.Log.Warn("event items unavailable",
					zap.String("event", meetings[i].VendorID), zap.Error(err))
				return nil
			}
			meetings[i].Items = a.convertItems(rawItems)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Adapter) convertItems(raw []apiEventItem) []civic.AgendaItem {
	items := make([]civic.AgendaItem, 0, len(raw))
	for _, ri := range raw {
		if strings.TrimSpace(ri.EventItemTitle) == "" {
			continue
		}
		item := civic.AgendaItem{
			VendorItemID: strconv.Itoa(ri.EventItemID),
			Title:        ri.EventItemTitle,
			Sequence:     ri.EventItemAgendaSequence,
			AgendaNumber: ri.EventItemAgendaNumber,
			MatterFile:   ri.EventItemMatterFile,
			MatterType:   ri.EventItemMatterType,
		}
		if item.Sequence <= 0 {
			item.Sequence = len(items) + 1
		}
		if ri.EventItemMatterID != 0 {
			item.MatterID = strconv.Itoa(ri.EventItemMatterID)
		}
		for _, att := range ri.EventItemMatterAttachments {
			if att.MatterAttachmentHyperlink == "" {
				continue
			}
			item.Attachments = append(item.Attachments,
				vendors.NewAttachment(att.MatterAttachmentName, att.MatterAttachmentHyperlink, ""))
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items
}

// fetchCalendarHTML parses the InSite calendar as a fallback. Rows carry
// the body name, date, time, and links to the agenda and detail pages.
func (a *Adapter) fetchCalendarHTML(ctx context.Context) ([]civic.Meeting, error) {
	base := a.webBase
	raw, err := a.Get(ctx, base+"/Calendar.aspx")
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var meetings []civic.Meeting
	for _, row := range htmlutil.FindAll(root, htmlutil.ByTagClass("tr", "rgRow")) {
		cells := htmlutil.FindAll(row, htmlutil.ByTag("td"))
		if len(cells) < 2 {
			continue
		}
		title := htmlutil.Text(cells[0])
		date := vendors.ParseDate(htmlutil.Text(cells[1]))
		if title == "" || date == nil {
			continue
		}

		m := civic.Meeting{Title: title, Start: *date}
		for _, link := range htmlutil.Links(row) {
			href := htmlutil.AbsoluteURL(base, link[0])
			text := strings.ToLower(link[1])
			switch {
			case strings.Contains(href, "MeetingDetail.aspx"):
				m.AgendaURL = href
				if id := queryParam(href, "ID"); id != "" {
					m.VendorID = id
				}
			case strings.Contains(text, "agenda") && strings.Contains(href, "View.ashx"):
				m.PacketURL = href
			}
		}
		if m.VendorID == "" {
			m.VendorID = civic.FallbackVendorID(a.slug, vendors.CivicDate(m.Start), m.Title)
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}
