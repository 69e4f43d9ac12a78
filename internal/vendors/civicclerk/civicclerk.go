// Package civicclerk integrates the CivicClerk OData API. Events carry
// their published files inline; agenda items come from a per-event
// endpoint fetched with bounded concurrency.
package civicclerk

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
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorCivicClerk, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return New(city, deps)
	})
}

// Adapter fetches meetings for one CivicClerk site.
type Adapter struct {
	vendors.Base
	apiBase    string
	portalBase string
}

// New validates construction; CivicClerk needs only the city slug.
func New(city civic.City, deps *vendors.Deps) (*Adapter, error) {
	if city.Slug == "" {
		return nil, fmt.Errorf("civicclerk: city %s has no slug", city.Banana)
	}
	return &Adapter{
		Base:       vendors.NewBase(city, deps),
		apiBase:    fmt.Sprintf("https://%s.api.civicclerk.com/v1", city.Slug),
		portalBase: fmt.Sprintf("https://%s.civicclerk.com", city.Slug),
	}, nil
}

func (a *Adapter) Vendor() civic.Vendor { return civic.VendorCivicClerk }

type odataEvents struct {
	Value []apiEvent `json:"value"`
}

type apiEvent struct {
	ID             int       `json:"id"`
	EventName      string    `json:"eventName"`
	StartDateTime  string    `json:"startDateTime"`
	EventLocation  string    `json:"eventLocation"`
	PublishedFiles []apiFile `json:"publishedFiles"`
}

type apiFile struct {
	FileID   int    `json:"fileId"`
	FileName string `json:"fileName"`
	Type     string `json:"type"`
}

type odataItems struct {
	Value []apiItem `json:"value"`
}

type apiItem struct {
	ID           int       `json:"id"`
	ItemName     string    `json:"itemName"`
	SortOrder    int       `json:"sortOrder"`
	AgendaNumber string    `json:"agendaNumber"`
	CaseNumber   string    `json:"caseNumber"`
	Files        []apiFile `json:"files"`
}

// FetchMeetings queries events within the window and loads each
// event's agenda items.
func (a *Adapter) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	now := time.Now()
	filter := fmt.Sprintf("startDateTime ge %s and startDateTime le %s",
		window.Start(now).Format("2006-01-02T15:04:05Z"),
		window.End(now).Format("2006-01-02T15:04:05Z"))
	eventsURL := fmt.Sprintf("%s/Events?$filter=%s&$orderby=startDateTime asc",
		a.apiBase, url.QueryEscape(filter))

	var events odataEvents
	if err := a.GetJSON(ctx, eventsURL, &events); err != nil {
		return nil, err
	}

	meetings := make([]civic.Meeting, 0, len(events.Value))
	for _, ev := range events.Value {
		start := vendors.ParseDate(ev.StartDateTime)
		if start == nil {
			a.Log.Warn("unparseable event date", zap.Int("event", ev.ID), zap.String("date", ev.StartDateTime))
			continue
		}
		m := civic.Meeting{
			VendorID: strconv.Itoa(ev.ID),
			Title:    ev.EventName,
			Start:    *start,
			Location: ev.EventLocation,
		}
		for _, f := range ev.PublishedFiles {
			switch strings.ToLower(f.Type) {
			case "agenda":
				m.AgendaURL = fmt.Sprintf("%s/web/player?id=%d&type=meeting", a.portalBase, ev.ID)
			case "agendapacket", "packet":
				m.PacketURL = a.fileURL(f.FileID)
			}
		}
		meetings = append(meetings, m)
	}

	a.fetchItems(ctx, meetings)
	return meetings, nil
}

func (a *Adapter) fileURL(fileID int) string {
	return fmt.Sprintf("%s/Meetings/GetMeetingFileStream(fileId=%d,plainText=false)", a.apiBase, fileID)
}

func (a *Adapter) fetchItems(ctx context.Context, meetings []civic.Meeting) {
	sem := semaphore.NewWeighted(a.Deps.Concurrency())
	g, gctx := errgroup.WithContext(ctx)
	for i := range meetings {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr
			}
			defer sem.Release(1)

			itemsURL := fmt.Sprintf("%s/Events(%s)/AgendaItems", a.apiBase, meetings[i].VendorID)
			var raw odataItems
			if err := a.GetJSON(gctx, itemsURL, &raw); err != nil {
				a.Log.Warn("agenda items unavailable",
					zap.String("event", meetings[i].VendorID), zap.Error(err))
				return nil
			}
			meetings[i].Items = a.convertItems(raw.Value)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Adapter) convertItems(raw []apiItem) []civic.AgendaItem {
	items := make([]civic.AgendaItem, 0, len(raw))
	for _, ri := range raw {
		title := strings.TrimSpace(ri.ItemName)
		if title == "" {
			continue
		}
		item := civic.AgendaItem{
			VendorItemID: strconv.Itoa(ri.ID),
			Title:        title,
			Sequence:     ri.SortOrder,
			AgendaNumber: ri.AgendaNumber,
			MatterFile:   vendors.NormalizeMatterFile(ri.CaseNumber),
		}
		if item.Sequence <= 0 {
			item.Sequence = len(items) + 1
		}
		if item.MatterFile == "" {
			item.MatterFile = vendors.ExtractMatterFile(title)
		}
		if item.MatterFile != "" {
			item.MatterType = vendors.MatterTypeFromFile(item.MatterFile)
		}
		for _, f := range ri.Files {
			item.Attachments = append(item.Attachments,
				vendors.NewAttachment(f.FileName, a.fileURL(f.FileID), f.Type))
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		items = append(items, item)
	}
	return items
}
