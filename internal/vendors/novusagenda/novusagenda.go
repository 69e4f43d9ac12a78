// Package novusagenda integrates NovusAGENDA public portals
// ({slug}.novusagenda.com/agendapublic). The public listing is a grid
// of meetings with ViewAgenda links; CoverSheet.aspx links inside an
// agenda identify individual items.
package novusagenda

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorNovusAgenda, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one NovusAGENDA city.
type Adapter struct {
	vendors.Base
	baseURL string
}

// New validates construction.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("novusagenda: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: fmt.Sprintf("https://%s.novusagenda.com/agendapublic", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorNovusAgenda }

// FetchMeetings parses the public meetings grid and then each HTML
// agenda view for items.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	raw, err := a.Get(ctx, a.baseURL+"/meetingsresponsive.aspx")
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

	a.fetchDetails(ctx, meetings)
	return meetings, nil
}

// parseRow extracts one grid row. The HTML agenda view carries the
// meeting id; the PDF link becomes the packet.
func (a *Adapter) parseRow(row *html.Node) (civic.Meeting, bool) {
	cells := htmlutil.FindAll(row, htmlutil.ByTag("td"))
	if len(cells) < 2 {
		return civic.Meeting{}, false
	}

	var m civic.Meeting
	for _, cell := range cells {
		if t := vendors.ParseDate(htmlutil.Text(cell)); t != nil && m.Start.IsZero() {
			m.Start = *t
			continue
		}
		if m.Title == "" {
			if txt := htmlutil.Text(cell); txt != "" && !strings.Contains(strings.ToLower(txt), "view") {
				m.Title = txt
			}
		}
	}
	for _, link := range htmlutil.Links(row) {
		href := htmlutil.AbsoluteURL(a.baseURL+"/", link[0])
		switch {
		case strings.Contains(href, "MeetingView.aspx"):
			m.AgendaURL = href
			if u, err := url.Parse(href); err == nil {
				m.VendorID = u.Query().Get("MeetingID")
			}
		case strings.Contains(href, "DisplayAgendaPDF.ashx"):
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

func (a *Adapter) fetchDetails(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		if meetings[i].AgendaURL == "" {
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr
			}
			defer sem.Release(1)
			items, err := a.parseAgenda(gctx, meetings[i].AgendaURL)
			if err != nil {
				a.Log.Warn("agenda view parse failed",
					zap.String("url", meetings[i].AgendaURL), zap.Error(err))
				return nil
			}
			meetings[i].Items = items
			return nil
		})
	}
	_ = g.Wait()
}

// parseAgenda extracts items from the HTML agenda view. CoverSheet.aspx
// links identify items; the ItemID query value is stable per matter.
func (a *Adapter) parseAgenda(ctx context.Context, agendaURL string) ([]civic.AgendaItem, error) {
	raw, err := a.Get(ctx, agendaURL)
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
		if !strings.Contains(link[0], "CoverSheet.aspx") {
			continue
		}
		href := htmlutil.AbsoluteURL(a.baseURL+"/", link[0])
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
			item.VendorItemID = u.Query().Get("ItemID")
			item.MatterID = item.VendorItemID
		}
		if file := vendors.ExtractMatterFile(title); file != "" {
			item.MatterFile = file
			item.MatterType = vendors.MatterTypeFromFile(file)
		}
		item.Attachments = []civic.Attachment{
			vendors.NewAttachment(title, href, "coversheet"),
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items, nil
}
