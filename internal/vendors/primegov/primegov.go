// Package primegov integrates the PrimeGov public portal API. PrimeGov
// is API-first: upcoming and archived meetings come from JSON endpoints,
// agendas are published as HTML templates or compiled PDF packets, and
// items are parsed out of the HTML agenda when one exists.
package primegov

import (
	"context"
	"fmt"
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
	vendors.Register(civic.VendorPrimeGov, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one PrimeGov city.
type Adapter struct {
	vendors.Base
	baseURL string
}

// New validates construction; PrimeGov needs only the city slug.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("primegov: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: fmt.Sprintf("https://%s.primegov.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorPrimeGov }

// apiMeeting is the portal API shape.
type apiMeeting struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	DateTime     string        `json:"dateTime"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	DocumentList []apiDocument `json:"documentList"`
}

type apiDocument struct {
	TemplateName      string `json:"templateName"`
	TemplateID        int    `json:"templateId"`
	CompileOutputType string `json:"compileOutputType"`
}

// FetchMeetings lists upcoming meetings plus the current year's archive
// and parses the HTML agenda of each meeting that publishes one.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	var upcoming []apiMeeting
	url := a.baseURL + "/api/v2/PublicPortal/ListUpcomingMeetings"
	if err := a.GetJSON(ctx, url, &upcoming); err != nil {
		return nil, err
	}

	// The archive endpoint covers the look-back part of the window.
	var archived []apiMeeting
	year := time.Now().Year()
	archiveURL := fmt.Sprintf("%s/api/v2/PublicPortal/ListArchivedMeetings?year=%d", a.baseURL, year)
	if err := a.GetJSON(ctx, archiveURL, &archived); err != nil {
		// Archive failures cost history, not the sync.
		a.Log.Warn("archived meetings unavailable", zap.Error(err))
	}

	seen := map[int]bool{}
	var meetings []civic.Meeting
	for _, raw := range append(upcoming, archived...) {
		if seen[raw.ID] {
			continue
		}
		seen[raw.ID] = true
		m, ok := a.convert(raw)
		if !ok {
			continue
		}
		meetings = append(meetings, m)
	}

	a.fetchAgendaItems(ctx, meetings)
	return meetings, nil
}

func (a *Adapter) convert(raw apiMeeting) (civic.Meeting, bool) {
	start := vendors.ParseDate(raw.DateTime)
	if start == nil {
		start = vendors.ParseDate(strings.TrimSpace(raw.Date + " " + raw.Time))
	}
	if start == nil {
		a.Log.Warn("unparseable meeting date",
			zap.Int("id", raw.ID), zap.String("dateTime", raw.DateTime))
		return civic.Meeting{}, false
	}

	m := civic.Meeting{
		VendorID: strconv.Itoa(raw.ID),
		Title:    raw.Title,
		Start:    *start,
	}
	for _, doc := range raw.DocumentList {
		name := strings.ToLower(doc.TemplateName)
		switch {
		case strings.Contains(name, "html agenda"):
			m.AgendaURL = fmt.Sprintf("%s/Portal/Meeting?meetingTemplateId=%d", a.baseURL, doc.TemplateID)
		case strings.Contains(name, "agenda packet") || strings.EqualFold(doc.CompileOutputType, "pdf"):
			m.PacketURL = fmt.Sprintf("%s/Public/CompiledDocument?meetingTemplateId=%d&compileOutputType=pdf",
				a.baseURL, doc.TemplateID)
		case strings.Contains(name, "agenda") && m.AgendaURL == "":
			m.AgendaURL = fmt.Sprintf("%s/Portal/Meeting?meetingTemplateId=%d", a.baseURL, doc.TemplateID)
		}
	}
	return m, true
}

// fetchAgendaItems loads each HTML agenda concurrently (bounded) and
// fills in the item lists. Per-meeting failures are logged and skipped.
func (a *Adapter) fetchAgendaItems(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		if meetings[i].AgendaURL == "" {
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr // cancellation ends quietly
			}
			defer sem.Release(1)
			items, part, err := a.parseAgendaPage(gctx, meetings[i].AgendaURL)
			if err != nil {
				a.Log.Warn("agenda page parse failed",
					zap.String("url", meetings[i].AgendaURL), zap.Error(err))
				return nil
			}
			meetings[i].Items = items
			meetings[i].Participation = part
			return nil
		})
	}
	_ = g.Wait()
}

// parseAgendaPage extracts items from the portal's HTML agenda, plus
// any remote-participation instructions from the page prose. Each item
// row carries a title cell and optional attachment links.
func (a *Adapter) parseAgendaPage(ctx context.Context, url string) ([]civic.AgendaItem, *civic.ParticipationInfo, error) {
	raw, err := a.Get(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, nil, err
	}

	var items []civic.AgendaItem
	rows := htmlutil.FindAll(root, htmlutil.ByTagClass("div", "agenda-item"))
	if len(rows) == 0 {
		rows = htmlutil.FindAll(root, htmlutil.ByTagClass("tr", "meeting-item"))
	}
	for _, row := range rows {
		title := ""
		if t := htmlutil.FindFirst(row, htmlutil.ByTagClass("span", "item-title")); t != nil {
			title = htmlutil.Text(t)
		} else {
			title = htmlutil.Text(row)
		}
		if title == "" {
			continue
		}

		item := civic.AgendaItem{
			VendorItemID: htmlutil.Attr(row, "data-item-id"),
			Title:        title,
			Sequence:     len(items) + 1,
			AgendaNumber: htmlutil.Attr(row, "data-item-number"),
		}
		if file := vendors.ExtractMatterFile(title); file != "" {
			item.MatterFile = file
			item.MatterType = vendors.MatterTypeFromFile(file)
		}
		for _, link := range htmlutil.Links(row) {
			href := htmlutil.AbsoluteURL(a.baseURL, link[0])
			if strings.Contains(href, "/Public/") || strings.Contains(href, "Download") {
				item.Attachments = append(item.Attachments, vendors.NewAttachment(link[1], href, ""))
			}
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items, vendors.ExtractParticipation(htmlutil.Text(root)), nil
}
