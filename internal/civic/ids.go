package civic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// idSafe matches characters allowed verbatim in generated identifiers.
var idSafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// maxVendorIDLen bounds the vendor-id portion of a meeting id. Longer
// vendor ids (some Granicus URLs exceed 200 chars) fall back to a digest.
const maxVendorIDLen = 64

// shortHash returns the first n hex chars of the sha256 of s.
func shortHash(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}

// MeetingID derives the globally unique meeting id from the city banana
// and the vendor's meeting id. The id is stable across syncs. Vendor ids
// that are empty, unsafe, or oversized fall back to an 8-char digest.
func MeetingID(banana, vendorID string) string {
	cleaned := idSafe.ReplaceAllString(vendorID, "")
	if cleaned == "" || len(cleaned) > maxVendorIDLen || cleaned != vendorID {
		return fmt.Sprintf("%s_%s", banana, shortHash(vendorID, 8))
	}
	return fmt.Sprintf("%s_%s", banana, cleaned)
}

// ItemID derives the per-meeting agenda item id from the meeting id and
// the vendor's item id (or the sequence when the vendor has none).
func ItemID(meetingID, vendorItemID string, sequence int) string {
	if vendorItemID == "" {
		vendorItemID = fmt.Sprintf("seq%d", sequence)
	}
	cleaned := idSafe.ReplaceAllString(vendorItemID, "")
	if cleaned == "" || len(cleaned) > maxVendorIDLen || cleaned != vendorItemID {
		cleaned = shortHash(vendorItemID, 8)
	}
	return fmt.Sprintf("%s_%s", meetingID, cleaned)
}

// matterFileNorm collapses separator styles in human case numbers so that
// "COF 2025 #141" and "COF-2025-141" produce the same id.
var matterFileNorm = regexp.MustCompile(`[\s#/]+`)

// MatterID derives the per-city matter id. Matters with a human-readable
// case number key on it directly; otherwise a stable digest of the
// identifying fields is used so that re-ingestion yields the same id.
func MatterID(banana, matterFile, matterID, title string) string {
	if matterFile != "" {
		norm := matterFileNorm.ReplaceAllString(strings.TrimSpace(matterFile), "-")
		norm = strings.Trim(norm, "-")
		return fmt.Sprintf("%s_%s", banana, norm)
	}
	return fmt.Sprintf("%s_m%s", banana, shortHash(matterID+"|"+title, 10))
}

// FallbackVendorID builds a stable 8-hex-char meeting id for vendors that
// expose no native identifier. Parts are typically slug, date, title and
// optionally a meeting type.
func FallbackVendorID(parts ...string) string {
	return shortHash(strings.Join(parts, "|"), 8)
}

// AttachmentHash digests the (name, URL) pairs of an attachment list.
// The list is hashed order-independently so vendor reordering does not
// register as a change.
func AttachmentHash(atts []Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	pairs := make([]string, len(atts))
	for i, a := range atts {
		pairs[i] = a.Name + "\x00" + a.URL
	}
	sort.Strings(pairs)
	return shortHash(strings.Join(pairs, "\x01"), 16)
}

// ChangeDigest is the meeting-level change-detection digest. Only fields
// that signal re-publication participate; item edits are detected via
// per-item attachment hashes instead.
func ChangeDigest(meetingID, title string, start time.Time, packetURL string) string {
	return shortHash(strings.Join([]string{meetingID, title, start.Format(time.RFC3339), packetURL}, "|"), 16)
}
