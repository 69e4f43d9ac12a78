// Package iqm2 integrates legacy IQM2 portals ({slug}.iqm2.com). The
// Citizens calendar lists meetings with Detail_Meeting.aspx links;
// agenda items on the detail page link to Detail_LegiFile.aspx matter
// records.
package iqm2

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorIQM2, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one IQM2 city.
type Adapter struct {
	vendors.Base
	baseURL string
}

// New validates construction.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("iqm2: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: fmt.Sprintf("https://%s.iqm2.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorIQM2 }

// FetchMeetings loads the calendar spanning the window and then each
// meeting's detail page.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	now := time.Now()
	calURL := fmt.Sprintf("%s/Citizens/Calendar.aspx?View=List&From=%s&To=%s",
		a.baseURL,
		window.Start(now).Format("1/2/2006"),
		window.End(now).Format("1/2/2006"))
	raw, err := a.Get(ctx, calURL)
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var meetings []civic.Meeting
	seen := map[string]bool{}
	for _, row := range htmlutil.FindAll(root, htmlutil.ByTagClass("div", "MeetingRow")) {
		m, ok := a.parseRow(row)
		if !ok || seen[m.VendorID] {
			continue
		}
		seen[m.VendorID] = true
		meetings = append(meetings, m)
	}

	a.fetchDetails(ctx, meetings)
	return meetings, nil
}

// parseRow extracts one calendar row: the Detail_Meeting.aspx link
// carries the meeting id, a RowLink div the title, and the row text
// the date.
func (a *Adapter) parseRow(row *html.Node) (civic.Meeting, bool) {
	var m civic.Meeting
	for _, link := range htmlutil.Links(row) {
		href := htmlutil.AbsoluteURL(a.baseURL, link[0])
		switch {
		case strings.Contains(href, "Detail_Meeting.aspx"):
			m.AgendaURL = href
			if m.Title == "" {
				m.Title = link[1]
			}
			if u, err := url.Parse(href); err == nil {
				m.VendorID = u.Query().Get("ID")
			}
		case strings.Contains(href, "FileOpen.aspx") && strings.Contains(strings.ToLower(link[1]), "agenda"):
			if m.PacketURL == "" {
				m.PacketURL = href
			}
		}
	}
	if m.AgendaURL == "" {
		return civic.Meeting{}, false
	}

	if t := htmlutil.FindFirst(row, htmlutil.ByTagClass("div", "RowLink")); t != nil {
		if txt := htmlutil.Text(t); txt != "" {
			m.Title = txt
		}
	}
	if d := htmlutil.FindFirst(row, htmlutil.ByTagClass("div", "RowDate")); d != nil {
		if t := vendors.ParseDate(htmlutil.Text(d)); t != nil {
			m.Start = *t
		}
	}
	if m.Title == "" || m.Start.IsZero() {
		return civic.Meeting{}, false
	}
	if m.VendorID == "" {
		m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	}
	return m, true
}

func (a *Adapter) fetchDetails(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr
			}
			defer sem.Release(1)
			items, err := a.parseDetail(gctx, meetings[i].AgendaURL)
			if err != nil {
				a.Log.Warn("meeting detail parse failed",
					zap.String("url", meetings[i].AgendaURL), zap.Error(err))
				return nil
			}
			meetings[i].Items = items
			return nil
		})
	}
	_ = g.Wait()
}

// parseDetail extracts agenda items. Each Detail_LegiFile.aspx link is
// one matter on the agenda; its query ID becomes the vendor matter id.
func (a *Adapter) parseDetail(ctx context.Context, meetingURL string) ([]civic.AgendaItem, error) {
	raw, err := a.Get(ctx, meetingURL)
	if err != nil {
		return nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, err
	}

	var items []civic.AgendaItem
	seen := map[string]bool{}
	for _, link := range htmlutil.Links(root) {
		if !strings.Contains(link[0], "Detail_LegiFile.aspx") {
			continue
		}
		href := htmlutil.AbsoluteURL(a.baseURL, link[0])
		title := strings.TrimSpace(link[1])
		if title == "" || seen[href] {
			continue
		}
		seen[href] = true

		item := civic.AgendaItem{
			Title:    title,
			Sequence: len(items) + 1,
		}
		if u, err := url.Parse(href); err == nil {
			item.VendorItemID = u.Query().Get("ID")
			item.MatterID = item.VendorItemID
		}
		if file := vendors.ExtractMatterFile(title); file != "" {
			item.MatterFile = file
			item.MatterType = vendors.MatterTypeFromFile(file)
		}
		item.Attachments = []civic.Attachment{
			vendors.NewAttachment(title, href, "legislation"),
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items, nil
}
