package citycustom

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
	vendors.Register(civic.VendorMenloPark, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return NewMenloPark(city, deps)
	})
}

const menloParkBase = "https://menlopark.gov"

// MenloPark scrapes the city agenda listing; agendas are published
// only as PDFs, so items come from the PDF structural parser.
type MenloPark struct {
	vendors.Base
}

// NewMenloPark validates construction.
func NewMenloPark(city civic.City, deps *vendors.Deps) (*MenloPark, error) {
	if city.Banana != "menloparkCA" {
		return nil, fmt.Errorf("menlopark adapter configured for wrong city %s", city.Banana)
	}
	return &MenloPark{Base: vendors.NewBase(city, deps)}, nil
}

func (a *MenloPark) Vendor() civic.Vendor { return civic.VendorMenloPark }

// FetchMeetings parses the listing and extracts items from each agenda
// PDF.
func (a *MenloPark) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	listURL := menloParkBase + "/Government/City-Council/City-Council-agendas-and-minutes"
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

	a.extractItems(ctx, meetings)
	return meetings, nil
}

func (a *MenloPark) parseRow(row *html.Node) (civic.Meeting, bool) {
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
		href := htmlutil.AbsoluteURL(menloParkBase, link[0])
		lower := strings.ToLower(link[1] + " " + href)
		if strings.Contains(lower, "agenda") && strings.Contains(strings.ToLower(href), ".pdf") {
			m.PacketURL = href
			break
		}
	}
	if m.Title == "" || m.Start.IsZero() || m.PacketURL == "" {
		return civic.Meeting{}, false
	}
	m.VendorID = civic.FallbackVendorID(a.City.Slug, vendors.CivicDate(m.Start), m.Title)
	return m, true
}

func (a *MenloPark) extractItems(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
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
			for _, p := range pdftext.ParseAgenda(text) {
				item := civic.AgendaItem{
					VendorItemID: p.Number,
					Title:        p.Title,
					Sequence:     len(meetings[i].Items) + 1,
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
				meetings[i].Items = append(meetings[i].Items, item)
			}
			return nil
		})
	}
	_ = g.Wait()
}
