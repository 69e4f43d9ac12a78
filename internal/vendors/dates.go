package vendors

import (
	"regexp"
	"strings"
	"time"
)

// Civic times are local wall-clock values; layouts parse without zone
// conversion and the result is stored as-is.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Jan 02, 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
}

// weekdayPrefix strips a leading weekday ("Tuesday, ", "Tue ") that many
// listing pages prepend in ad-hoc ways.
var weekdayPrefix = regexp.MustCompile(`(?i)^(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thurs|fri|sat|sun)[,.]?\s+`)

// dotnetDate matches the WCF "/Date(1700000000000)/" encoding used by
// some Legistar and IQM2 endpoints.
var dotnetDate = regexp.MustCompile(`^/Date\((\d+)([+-]\d{4})?\)/$`)

// ParseDate parses the formats observed across vendor calendars. It
// returns nil for anything unparseable: bad dates drop the meeting at
// validation, they never abort a sync.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if m := dotnetDate.FindStringSubmatch(s); m != nil {
		var millis int64
		for _, c := range m[1] {
			millis = millis*10 + int64(c-'0')
		}
		t := time.UnixMilli(millis).UTC()
		return &t
	}

	// Normalize unicode spaces and doubled whitespace before layout
	// matching.
	s = strings.NewReplacer(" ", " ", "–", "-", "@", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSuffix(s, ".")

	candidates := []string{s}
	if stripped := weekdayPrefix.ReplaceAllString(s, ""); stripped != s {
		candidates = append(candidates, stripped)
	}
	// "6:00 p.m." style suffixes.
	lower := strings.NewReplacer("p.m.", "PM", "a.m.", "AM", "pm", "PM", "am", "AM")
	for _, c := range candidates[:] {
		if r := lower.Replace(c); r != c {
			candidates = append(candidates, r)
		}
	}

	for _, c := range candidates {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return &t
			}
		}
	}
	return nil
}

// CivicDate formats a time the way ids and digests expect: local
// wall-clock, second resolution.
func CivicDate(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
