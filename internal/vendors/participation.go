package vendors

import (
	"regexp"
	"strings"

	"github.com/civiclight/civiclight/internal/civic"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}`)
	zoomRe  = regexp.MustCompile(`https?://[\w.-]*zoom\.us/[^\s"'<>)]+`)
	teamsRe = regexp.MustCompile(`https?://teams\.microsoft\.com/[^\s"'<>)]+`)
	webexRe = regexp.MustCompile(`https?://[\w.-]*webex\.com/[^\s"'<>)]+`)

	hybridRe = regexp.MustCompile(`(?i)\b(hybrid|in[- ]person\s+(and|or)\s+(virtual|remote|teleconference)|both\s+in[- ]person)\b`)

	// "Councilmember Jane Doe", "Mayor John Q. Public", ...
	memberRe = regexp.MustCompile(`(?i)\b(council\s*member|mayor|vice\s+mayor|commissioner|chair(person)?|trustee|supervisor)\s+([A-Z][a-z]+(?:\s+[A-Z]\.)?(?:\s+[A-Z][a-z]+){1,2})`)
)

// ExtractParticipation scans agenda prose for contact and attendance
// details. Returns nil when nothing was found.
func ExtractParticipation(text string) *civic.ParticipationInfo {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	p := &civic.ParticipationInfo{}

	if m := emailRe.FindString(text); m != "" {
		p.Email = m
	}
	if m := phoneRe.FindString(text); m != "" {
		p.Phone = strings.TrimSpace(m)
	}
	for _, re := range []*regexp.Regexp{zoomRe, teamsRe, webexRe} {
		if m := re.FindString(text); m != "" {
			p.VirtualURL = strings.TrimRight(m, ".,;")
			break
		}
	}
	p.Hybrid = hybridRe.MatchString(text)

	seen := map[string]bool{}
	for _, m := range memberRe.FindAllStringSubmatch(text, -1) {
		name := strings.Join(strings.Fields(m[3]), " ")
		if !seen[name] {
			seen[name] = true
			p.Members = append(p.Members, name)
		}
	}

	if p.Email == "" && p.Phone == "" && p.VirtualURL == "" && !p.Hybrid && len(p.Members) == 0 {
		return nil
	}
	return p
}
