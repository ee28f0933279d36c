package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/cache"
	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// StargazerCollector collects STARRED detail events plus the daily star and
// watcher aggregate snapshots.
type StargazerCollector struct {
	eng *engine
}

// NewStargazerCollector wires the stargazer family onto its collaborators.
func NewStargazerCollector(client *github.Client, ts *cache.TimeSeriesCache, rec *recorder.EventRecorder, cfg Config, logger *zap.Logger) *StargazerCollector {
	return &StargazerCollector{eng: newEngine(client, ts, rec, cfg, logger, "stargazers")}
}

// Name implements MetricCollector.
func (c *StargazerCollector) Name() string { return "stargazers" }

// Collect implements MetricCollector.
func (c *StargazerCollector) Collect(ctx context.Context, group types.ArtifactGroup, r timerange.Range, commit CommitFunc) (*Outcome, error) {
	return c.eng.collect(ctx, starFamily{c.eng}, group, r, commit)
}

// starFamily plugs stargazer specifics into the shared engine flow.
type starFamily struct {
	e *engine
}

func (starFamily) name() string   { return "stargazers" }
func (starFamily) bucket() string { return "stars" }

func (starFamily) detailCount(sum *github.RepoSummary) int {
	return sum.StargazerCount
}

func (starFamily) aggregateTypes() []types.EventType {
	return []types.EventType{types.EventStarAggregateStats, types.EventWatcherAggregateStats}
}

func (starFamily) aggregateEvents(repo types.Artifact, sum *github.RepoSummary, day time.Time) []types.Event {
	var evs []types.Event
	if sum.StargazerCount > 0 {
		evs = append(evs, types.NewAggregateStatsEvent(types.EventStarAggregateStats, day, repo, float64(sum.StargazerCount)))
	}
	if sum.Watchers.TotalCount > 0 {
		evs = append(evs, types.NewAggregateStatsEvent(types.EventWatcherAggregateStats, day, repo, float64(sum.Watchers.TotalCount)))
	}
	return evs
}

func (f starFamily) walkDetails(ctx context.Context, loc github.Locator, repo types.Artifact, r timerange.Range, submit submitFunc) error {
	pager := f.e.client.Stargazers(loc.Owner, loc.Name, f.e.cfg.PageSize, f.e.cfg.Gate)
	for pager.Next(ctx) {
		edge := pager.Current()
		if edge.StarredAt.Before(r.Start) {
			// Descending starredAt order: everything further is older still.
			break
		}
		if edge.StarredAt.After(r.End) {
			continue
		}
		actor := types.NewArtifact(types.NamespaceGithub, types.ArtifactUser, edge.Node.Login)
		if err := submit(types.NewStarredEvent(edge.StarredAt, repo, actor)); err != nil {
			return err
		}
	}
	return pager.Err()
}
