// Package escribe integrates Escribe meeting portals
// (pub-{slug}.escribemeetings.com). The year listing links each meeting
// to a detail page whose item blocks carry FileStream.ashx attachment
// downloads.
package escribe

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
	vendors.Register(civic.VendorEscribe, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one Escribe site.
type Adapter struct {
	vendors.Base
	baseURL string
}

// New validates construction.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("escribe: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:    vendors.NewBase(city, deps),
		baseURL: fmt.Sprintf("https://pub-%s.escribemeetings.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorEscribe }

// FetchMeetings loads the year listing(s) covering the window and then
// each meeting's detail page, bounded-concurrently.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	now := time.Now()
	years := map[int]bool{window.Start(now).Year(): true, window.End(now).Year(): true}

	var meetings []civic.Meeting
	seen := map[string]bool{}
	for year := range years {
		listURL := fmt.Sprintf("%s/?Year=%d&Expanded=true", a.baseURL, year)
		raw, err := a.Get(ctx, listURL)
		if err != nil {
			if len(meetings) > 0 {
				a.Log.Warn("year listing unavailable", zap.Int("year", year), zap.Error(err))
				continue
			}
			return nil, err
		}
		root, err := htmlutil.Parse(string(raw))
		if err != nil {
			return nil, err
		}
		for _, node := range htmlutil.FindAll(root, htmlutil.ByTagClass("div", "meeting-title")) {
			m, ok := a.parseListing(node)
			if !ok || seen[m.VendorID] {
				continue
			}
			seen[m.VendorID] = true
			meetings = append(meetings, m)
		}
	}

	a.fetchDetails(ctx, meetings)
	return meetings, nil
}

// parseListing extracts one meeting from its listing block: a link to
// Meeting.aspx?Id={guid} with the title, and a sibling date span.
func (a *Adapter) parseListing(node *html.Node) (civic.Meeting, bool) {
	var m civic.Meeting
	for _, link := range htmlutil.Links(node) {
		if !strings.Contains(link[0], "Meeting.aspx") {
			continue
		}
		href := htmlutil.AbsoluteURL(a.baseURL, link[0])
		m.AgendaURL = href
		m.Title = link[1]
		if u, err := url.Parse(href); err == nil {
			m.VendorID = u.Query().Get("Id")
		}
		break
	}
	if m.AgendaURL == "" {
		return civic.Meeting{}, false
	}

	parent := node.Parent
	if parent != nil {
		if d := htmlutil.FindFirst(parent, htmlutil.ByTagClass("div", "meeting-date")); d != nil {
			if t := vendors.ParseDate(htmlutil.Text(d)); t != nil {
				m.Start = *t
			}
		}
	}
	if m.Start.IsZero() || m.Title == "" {
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
			items, part, err := a.parseDetail(gctx, meetings[i].AgendaURL)
			if err != nil {
				a.Log.Warn("meeting detail parse failed",
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

// parseDetail extracts agenda items from the meeting page, along with
// remote-participation instructions when the page carries them. Item
// blocks are AgendaItem containers with a title header and
// FileStream.ashx attachment links.
func (a *Adapter) parseDetail(ctx context.Context, meetingURL string) ([]civic.AgendaItem, *civic.ParticipationInfo, error) {
	raw, err := a.Get(ctx, meetingURL+"&Agenda=Agenda&lang=English")
	if err != nil {
		return nil, nil, err
	}
	root, err := htmlutil.Parse(string(raw))
	if err != nil {
		return nil, nil, err
	}

	var items []civic.AgendaItem
	for _, block := range htmlutil.FindAll(root, htmlutil.ByTagClass("div", "AgendaItem")) {
		title := ""
		if h := htmlutil.FindFirst(block, htmlutil.ByTagClass("div", "AgendaItemTitle")); h != nil {
			title = htmlutil.Text(h)
		}
		if title == "" {
			continue
		}
		item := civic.AgendaItem{
			VendorItemID: htmlutil.Attr(block, "id"),
			Title:        title,
			Sequence:     len(items) + 1,
		}
		if file := vendors.ExtractMatterFile(title); file != "" {
			item.MatterFile = file
			item.MatterType = vendors.MatterTypeFromFile(file)
		}
		for _, link := range htmlutil.Links(block) {
			if !strings.Contains(link[0], "FileStream.ashx") {
				continue
			}
			href := htmlutil.AbsoluteURL(a.baseURL, link[0])
			item.Attachments = append(item.Attachments, vendors.NewAttachment(link[1], href, ""))
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items, vendors.ExtractParticipation(htmlutil.Text(root)), nil
}
