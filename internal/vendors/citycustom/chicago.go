// Package citycustom holds one-off adapters for cities whose portals
// are bespoke rather than a known vendor product: Chicago's Clerk ELMS
// API, Berkeley's city site, and Menlo Park's PDF-only agendas.
package citycustom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/vendors"
)

func init() {
	vendors.Register(civic.VendorChicago, func(city civic.City, deps *vendors.Deps) (vendors.Adapter, error) {
		return NewChicago(city, deps)
	})
}

const chicagoAPIBase = "https://api.chicityclerkelms.chicago.gov"

// Chicago fetches meetings from the City Clerk ELMS API.
type Chicago struct {
	vendors.Base
}

// NewChicago validates construction.
func NewChicago(city civic.City, deps *vendors.Deps) (*Chicago, error) {
	if city.Banana != "chicagoIL" {
		return nil, fmt.Errorf("chicago adapter configured for wrong city %s", city.Banana)
	}
	return &Chicago{Base: vendors.NewBase(city, deps)}, nil
}

func (a *Chicago) Vendor() civic.Vendor { return civic.VendorChicago }

type chicagoMeetingPage struct {
	Data []chicagoMeeting `json:"data"`
}

type chicagoMeeting struct {
	MeetingID string              `json:"meetingId"`
	Body      string              `json:"body"`
	Date      string              `json:"date"`
	Location  string              `json:"location"`
	Agenda    []chicagoAttachment `json:"agenda"`
	Items     []chicagoItem       `json:"items"`
}

type chicagoItem struct {
	RecordNumber string              `json:"recordNumber"`
	Title        string              `json:"title"`
	Sort         int                 `json:"sort"`
	Attachments  []chicagoAttachment `json:"attachments"`
}

type chicagoAttachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FetchMeetings pages through /meeting filtered by date. The API
// returns agenda attachments and legislation records inline.
func (a *Chicago) FetchMeetings(ctx context.Context, window vendors.Window) ([]civic.Meeting, error) {
	now := time.Now()
	filter := fmt.Sprintf("date ge %s and date le %s",
		window.Start(now).Format("2006-01-02"), window.End(now).Format("2006-01-02"))

	var meetings []civic.Meeting
	for page := 0; ; page++ {
		pageURL := fmt.Sprintf("%s/meeting?filter=%s&skip=%d&top=50",
			chicagoAPIBase, url.QueryEscape(filter), page*50)
		var resp chicagoMeetingPage
		if err := a.GetJSON(ctx, pageURL, &resp); err != nil {
			if page > 0 {
				a.Log.Warn("meeting page unavailable", zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, err
		}
		if len(resp.Data) == 0 {
			break
		}
		for _, cm := range resp.Data {
			if m, ok := a.convert(cm); ok {
				meetings = append(meetings, m)
			}
		}
	}
	return meetings, nil
}

func (a *Chicago) convert(cm chicagoMeeting) (civic.Meeting, bool) {
	start := vendors.ParseDate(cm.Date)
	if cm.MeetingID == "" || cm.Body == "" || start == nil {
		return civic.Meeting{}, false
	}
	m := civic.Meeting{
		VendorID: cm.MeetingID,
		Title:    cm.Body,
		Start:    *start,
		Location: cm.Location,
	}
	for _, att := range cm.Agenda {
		if att.Path != "" {
			m.PacketURL = att.Path
			break
		}
	}
	for idx, ci := range cm.Items {
		if ci.Title == "" {
			continue
		}
		item := civic.AgendaItem{
			VendorItemID: ci.RecordNumber,
			Title:        ci.Title,
			Sequence:     ci.Sort,
			MatterFile:   vendors.NormalizeMatterFile(ci.RecordNumber),
		}
		if item.VendorItemID == "" {
			item.VendorItemID = strconv.Itoa(idx + 1)
		}
		if item.Sequence <= 0 {
			item.Sequence = idx + 1
		}
		if item.MatterFile != "" {
			item.MatterType = vendors.MatterTypeFromFile(item.MatterFile)
		}
		for _, att := range ci.Attachments {
			item.Attachments = append(item.Attachments, vendors.NewAttachment(att.Name, att.Path, ""))
		}
		item.AttachmentHash = civic.AttachmentHash(item.Attachments)
		m.Items = append(m.Items, item)
	}
	return m, true
}
