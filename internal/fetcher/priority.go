package fetcher

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
)

// neverSyncedScore puts never-synced cities ahead of everything else.
const neverSyncedScore = 1000.0

// priorityScore ranks cities within a vendor group: busy cities and
// stale cities first.
func priorityScore(recent30d int, lastSynced *time.Time, now time.Time) float64 {
	if lastSynced == nil {
		return neverSyncedScore
	}
	staleness := now.Sub(*lastSynced).Hours() / 24
	if staleness > 10 {
		staleness = 10
	}
	return float64(recent30d)*10 + staleness
}

// sortByPriority orders a vendor group in place, highest score first.
// Score lookups that fail fall back to zero recent meetings.
func (f *Fetcher) sortByPriority(ctx context.Context, group []civic.City) {
	now := f.now()
	scores := make(map[string]float64, len(group))
	for _, c := range group {
		recent, err := f.store.RecentMeetingCount(ctx, c.Banana, 30)
		if err != nil {
			f.log.Warn("recent meeting count failed", zap.String("banana", c.Banana), zap.Error(err))
		}
		scores[c.Banana] = priorityScore(recent, c.LastSynced, now)
	}
	sort.SliceStable(group, func(i, j int) bool {
		return scores[group[i].Banana] > scores[group[j].Banana]
	})
}

// syncInterval classifies a city's cadence by how often it meets:
// frequent bodies get fresh data, quiet ones a weekly look.
func syncInterval(recentPerMonth int) time.Duration {
	switch {
	case recentPerMonth >= 8:
		return 12 * time.Hour
	case recentPerMonth >= 4:
		return 24 * time.Hour
	case recentPerMonth >= 1:
		return 72 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// shouldSync applies the cadence heuristic.
func (f *Fetcher) shouldSync(ctx context.Context, city civic.City) (bool, error) {
	if city.LastSynced == nil {
		return true, nil
	}
	recent, err := f.store.RecentMeetingCount(ctx, city.Banana, 30)
	if err != nil {
		return false, err
	}
	elapsed := f.now().Sub(*city.LastSynced)
	return elapsed >= syncInterval(recent), nil
}
