package fixtures

import (
	"time"

	"github.com/BaSui01/eventflow/types"
)

// baseDay anchors relative test dates. All fixture timestamps are UTC so
// sourceId derivation is stable across machines.
var baseDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Day returns midnight UTC of the nth day of the fixture calendar, where
// Day(1) is 2024-01-01.
func Day(n int) time.Time {
	return baseDay.AddDate(0, 0, n-1)
}

// StarredAt returns a STARRED event: login starred owner/name at ts.
func StarredAt(ts time.Time, owner, name, login string) types.Event {
	return types.NewStarredEvent(ts, Repo(owner, name), User(login))
}

// ForkedAt returns a FORKED event: login forked owner/name at ts.
func ForkedAt(ts time.Time, owner, name, login string) types.Event {
	return types.NewForkedEvent(ts, Repo(owner, name), User(login))
}

// StarTotals returns a star aggregate snapshot for owner/name on the day
// of ts.
func StarTotals(ts time.Time, owner, name string, total float64) types.Event {
	return types.NewAggregateStatsEvent(types.EventStarAggregateStats, ts, Repo(owner, name), total)
}

// Events is a convenience for building pointer slices out of value events.
func Events(evs ...types.Event) []*types.Event {
	out := make([]*types.Event, len(evs))
	for i := range evs {
		out[i] = &evs[i]
	}
	return out
}
