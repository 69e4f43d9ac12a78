package vendors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2026-02-24T18:00:00":            time.Date(2026, 2, 24, 18, 0, 0, 0, time.UTC),
		"2026-02-24":                     time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
		"02/24/2026 6:00 PM":             time.Date(2026, 2, 24, 18, 0, 0, 0, time.UTC),
		"2/4/2026":                       time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
		"Feb 24, 2026":                   time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
		"February 24, 2026 6:00 PM":      time.Date(2026, 2, 24, 18, 0, 0, 0, time.UTC),
		"Tuesday, February 24, 2026":     time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
		"Tue  Feb 24, 2026":              time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
		"02/24/2026 6:00 p.m.":           time.Date(2026, 2, 24, 18, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got := ParseDate(raw)
		require.NotNil(t, got, "should parse %q", raw)
		// Compare wall-clock fields; zone is irrelevant for civic time.
		assert.Equal(t, want.Year(), got.Year(), raw)
		assert.Equal(t, want.Month(), got.Month(), raw)
		assert.Equal(t, want.Day(), got.Day(), raw)
		assert.Equal(t, want.Hour(), got.Hour(), raw)
		assert.Equal(t, want.Minute(), got.Minute(), raw)
	}
}

func TestParseDateDotNet(t *testing.T) {
	got := ParseDate("/Date(1774375200000)/")
	require.NotNil(t, got)
	assert.Equal(t, int64(1774375200), got.Unix())
}

func TestParseDateUnparseable(t *testing.T) {
	for _, raw := range []string{"", "TBD", "see agenda", "13/45/2026"} {
		assert.Nil(t, ParseDate(raw), "%q should not parse", raw)
	}
}

func TestCivicDate(t *testing.T) {
	ts := time.Date(2026, 2, 24, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-02-24T18:30:00", CivicDate(ts))
}
