// Package municode integrates MunicodeMeetings portals
// ({slug}.municodemeetings.com). The listing is plain HTML; items are
// not exposed as structured data, so the agenda PDF is parsed when a
// meeting links one.
package municode

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/htmlutil"
	"github.com/civiclight/civiclight/internal/pdftext"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorMunicode, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one Municode city.
type Adapter struct {
	vendors.Base
	baseURL string
}

// New validates construction.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("municode: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: fmt.Sprintf("https://%s.municodemeetings.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorMunicode }

// FetchMeetings parses the listing rows and extracts items from agenda
// PDFs where available.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	raw, err := a.Get(ctx, a.baseURL)
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

	a.extractItems(ctx, meetings)
	return meetings, nil
}

func (a *Adapter) parseRow(row *html.Node) (civic.Meeting, bool) {
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
		href := htmlutil.AbsoluteURL(a.baseURL, link[0])
		lower := strings.ToLower(link[1] + " " + href)
		if strings.Contains(lower, "agenda") && strings.Contains(lower, ".pdf") {
			m.PacketURL = href
		} else if strings.Contains(lower, "agenda") && m.AgendaURL == "" {
			m.AgendaURL = href
		}
	}
	if m.Title == "" || m.Start.IsZero() || (m.AgendaURL == "" && m.PacketURL == "") {
		return civic.Meeting{}, false
	}
	m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	return m, true
}

// extractItems downloads each agenda PDF and parses numbered headings
// into items. PDF parse failures leave the meeting item-less; it is
// still stored and its packet summarized downstream.
func (a *Adapter) extractItems(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		if meetings[i].PacketURL == "" {
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr
			}
			defer sem.Release(1)

			raw, err := a.Get(gctx, meetings[i].PacketURL)
			if err != nil {
				a.Log.Warn("agenda pdf unavailable",
					zap.String("url", meetings[i].PacketURL), zap.Error(err))
				return nil
			}
			text, err := pdftext.Extract(raw)
			if err != nil {
				a.Log.Warn("agenda pdf unreadable",
					zap.String("url", meetings[i].PacketURL), zap.Error(err))
				return nil
			}
			meetings[i].Items = itemsFromPDF(text)
			return nil
		})
	}
	_ = g.Wait()
}

func itemsFromPDF(text string) []civic.AgendaItem {
	parsed := pdftext.ParseAgenda(text)
	items := make([]civic.AgendaItem, 0, len(parsed))
	for _, p := range parsed {
		item := civic.AgendaItem{
			VendorItemID: p.Number,
			Title:        p.Title,
			Sequence:     len(items) + 1,
			AgendaNumber: p.Number,
		}
		if file := vendors.ExtractMatterFile(p.Title); file != "" {
			item.MatterFile = file
			item.MatterType = vendors.MatterTypeFromFile(file)
		}
		for _, link := range p.Links {
			item.Attachments = append(item.Attachments, vendors.NewAttachment("", link, ""))
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items
}
