package vendors

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
)

// proceduralPatterns match ceremonial and administrative agenda items
// that carry no legislative content. An item matching one of these is
// dropped unless it references a matter.
var proceduralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(call\s+to\s+order|roll\s*call)\b`),
	regexp.MustCompile(`(?i)^\s*pledge\s+of\s+allegiance`),
	regexp.MustCompile(`(?i)^\s*(invocation|moment\s+of\s+silence)\b`),
	regexp.MustCompile(`(?i)^\s*adjourn(ment)?\b`),
	regexp.MustCompile(`(?i)^\s*(approval|acceptance)\s+of\s+(the\s+)?(minutes|agenda)\b`),
	regexp.MustCompile(`(?i)^\s*minutes\s+(approval|of)\b`),
	regexp.MustCompile(`(?i)^\s*(public\s+comment|oral\s+communications?|open\s+forum)\b`),
	regexp.MustCompile(`(?i)^\s*(proclamation|commendation|presentation\s+of)\b`),
	regexp.MustCompile(`(?i)^\s*(announcements?|council\s+member\s+reports?|city\s+manager('s)?\s+report)\b`),
	regexp.MustCompile(`(?i)^\s*(closed\s+session\s+report|report\s+out\s+of\s+closed\s+session)\b`),
	regexp.MustCompile(`(?i)^\s*(next\s+meeting|future\s+agenda\s+items?)\b`),
	regexp.MustCompile(`(?i)^\s*(flag\s+salute)\b`),
}

// IsProceduralTitle reports whether a title matches the procedural skip
// set.
func IsProceduralTitle(title string) bool {
	t := strings.TrimSpace(title)
	for _, p := range proceduralPatterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}

// FilterItems drops procedural items and renumbers sequences so they
// stay unique and dense. Items carrying a matter reference are always
// retained, whatever their title.
func FilterItems(items []civic.AgendaItem, log *zap.Logger) []civic.AgendaItem {
	if len(items) == 0 {
		return items
	}
	kept := make([]civic.AgendaItem, 0, len(items))
	dropped := 0
	for _, it := range items {
		if !it.HasMatter() && IsProceduralTitle(it.Title) {
			dropped++
			continue
		}
		it.Sequence = len(kept) + 1
		kept = append(kept, it)
	}
	if dropped > 0 && log != nil {
		log.Debug("filtered procedural items", zap.Int("dropped", dropped), zap.Int("kept", len(kept)))
	}
	return kept
}
