package pdftext

import (
	"regexp"
	"strings"
)

// Item is one agenda entry recovered from PDF text.
type Item struct {
	Number string // "J1.", "4.A." — as printed
	Title  string
	Links  []string
}

// itemHeading matches the numbering styles cities print on agendas:
// "1.", "4.A.", "J1.", "IV.", "A." at the start of a line.
var itemHeading = regexp.MustCompile(`^\s*((?:\d{1,2}\.[A-Z]?\.?)|(?:[A-Z]\d{1,2}\.)|(?:[IVXL]{1,4}\.)|(?:[A-Z]\.))\s+(\S.*)$`)

// sectionHeading matches all-caps section banners ("CONSENT CALENDAR",
// "PUBLIC HEARINGS") that delimit but do not form items.
var sectionHeading = regexp.MustCompile(`^[A-Z][A-Z &/-]{5,}$`)

// urlInText finds bare URLs left in the extracted text layer.
var urlInText = regexp.MustCompile(`https?://[^\s)>\]]+`)

// ParseAgenda recovers structured items from extracted agenda text.
// Consecutive lines under one heading are folded into its title until
// the next heading or section banner.
func ParseAgenda(text string) []Item {
	var items []Item
	var current *Item

	flush := func() {
		if current == nil {
			return
		}
		current.Title = strings.Join(strings.Fields(current.Title), " ")
		if current.Title != "" {
			items = append(items, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := itemHeading.FindStringSubmatch(line); m != nil {
			flush()
			current = &Item{Number: strings.TrimSpace(m[1]), Title: m[2]}
			current.Links = append(current.Links, urlInText.FindAllString(m[2], -1)...)
			continue
		}
		if sectionHeading.MatchString(trimmed) {
			flush()
			continue
		}
		if current != nil {
			// Continuation line: fold into the running title, but stop
			// at page-footer noise.
			if len(current.Title) < 600 {
				current.Title += " " + trimmed
			}
			current.Links = append(current.Links, urlInText.FindAllString(trimmed, -1)...)
		}
	}
	flush()
	return items
}
