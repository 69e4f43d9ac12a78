package vendors

import (
	"strings"

	"github.com/civiclight/civiclight/internal/civic"
)

// Status keywords in priority order: a "RESCHEDULED - CANCELLED" title
// is cancelled, not rescheduled.
var statusKeywords = []struct {
	words  []string
	status civic.MeetingStatus
}{
	{[]string{"CANCEL"}, civic.MeetingCancelled},
	{[]string{"POSTPONE"}, civic.MeetingPostponed},
	{[]string{"DEFER"}, civic.MeetingDeferred},
	{[]string{"RESCHEDULE"}, civic.MeetingRescheduled},
	{[]string{"REVISED", "AMENDMENT", "UPDATED"}, civic.MeetingRevised},
}

// ParseMeetingStatus scans free text (titles, date cells) for status
// keywords. Empty result means the meeting is on as scheduled.
func ParseMeetingStatus(fields ...string) civic.MeetingStatus {
	joined := strings.ToUpper(strings.Join(fields, " "))
	for _, kw := range statusKeywords {
		for _, w := range kw.words {
			if strings.Contains(joined, w) {
				return kw.status
			}
		}
	}
	return ""
}
