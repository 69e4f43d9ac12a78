package vendors

import (
	"regexp"
	"strings"
)

// Explicit case-number shapes, most specific first. These cover the
// formats observed across vendor titles; separator-style prefixes are
// normalized afterward by NormalizeMatterFile.
var matterFilePatterns = []*regexp.Regexp{
	// BOA-0039-2025, CUP25-00022, RES-2025-123, ORD-2024-0456
	regexp.MustCompile(`\b([A-Z]{2,5}-?\d{2,4}-\d{2,5})\b`),
	// COF 2025 #141 (separator style)
	regexp.MustCompile(`\b([A-Z]{2,5}\s+\d{4}\s+#\d{1,5})\b`),
	// 25-1234 (bare year-number file ids used by Legistar)
	regexp.MustCompile(`\b(\d{2}-\d{3,5})\b`),
	// 2026-14 (resolution/ordinance numbers with a full year)
	regexp.MustCompile(`\b(20\d{2}-\d{1,5})\b`),
	// BB107, AB52 (short bill styles)
	regexp.MustCompile(`\b([A-Z]{2,3}\d{2,4})\b`),
}

// ExtractMatterFile pulls the first case number out of a title. Returns
// "" when nothing matches.
func ExtractMatterFile(title string) string {
	for _, p := range matterFilePatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			return NormalizeMatterFile(m[1])
		}
	}
	return ""
}

var matterFileSeparators = regexp.MustCompile(`[\s#]+`)

// NormalizeMatterFile collapses separator styles: "COF 2025 #141" →
// "COF-2025-141".
func NormalizeMatterFile(file string) string {
	f := matterFileSeparators.ReplaceAllString(strings.TrimSpace(file), "-")
	return strings.Trim(f, "-")
}

// matterTypePrefixes maps leading case-number prefixes to a display
// type. Only prefixes with unambiguous meaning are mapped; everything
// else keeps an empty type.
var matterTypePrefixes = map[string]string{
	"RES":  "Resolution",
	"ORD":  "Ordinance",
	"BOA":  "Board of Adjustment",
	"CUP":  "Conditional Use Permit",
	"PUD":  "Planned Unit Development",
	"SUB":  "Subdivision",
	"VAR":  "Variance",
	"MIN":  "Minutes",
	"PROC": "Proclamation",
	"APPT": "Appointment",
	"CON":  "Contract",
	"AGR":  "Agreement",
}

var matterPrefixRe = regexp.MustCompile(`^([A-Z]{2,5})[-\d]`)

// MatterTypeFromFile derives the matter type from a case number's
// leading prefix, or "" when the prefix is not meaningful.
func MatterTypeFromFile(file string) string {
	m := matterPrefixRe.FindStringSubmatch(strings.ToUpper(file))
	if m == nil {
		return ""
	}
	return matterTypePrefixes[m[1]]
}

// Matter types the sync orchestrator never tracks as matters: items of
// these kinds are stored on the agenda but produce no city_matters row.
var skipMatterTypes = map[string]bool{
	"Minutes":       true,
	"Proclamation":  true,
	"Appointment":   true,
	"Announcement":  true,
	"Presentation":  true,
	"Communication": true,
}

// SkipMatterType reports whether a matter type is administrative or
// ceremonial and should not be tracked.
func SkipMatterType(matterType string) bool {
	return skipMatterTypes[matterType]
}
