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

// ForkCollector collects FORKED detail events plus the daily fork total
// snapshot.
type ForkCollector struct {
	eng *engine
}

// NewForkCollector wires the fork family onto its collaborators.
func NewForkCollector(client *github.Client, ts *cache.TimeSeriesCache, rec *recorder.EventRecorder, cfg Config, logger *zap.Logger) *ForkCollector {
	return &ForkCollector{eng: newEngine(client, ts, rec, cfg, logger, "forks")}
}

// Name implements MetricCollector.
func (c *ForkCollector) Name() string { return "forks" }

// Collect implements MetricCollector.
func (c *ForkCollector) Collect(ctx context.Context, group types.ArtifactGroup, r timerange.Range, commit CommitFunc) (*Outcome, error) {
	return c.eng.collect(ctx, forkFamily{c.eng}, group, r, commit)
}

// forkFamily plugs fork specifics into the shared engine flow.
type forkFamily struct {
	e *engine
}

func (forkFamily) name() string   { return "forks" }
func (forkFamily) bucket() string { return "forks" }

func (forkFamily) detailCount(sum *github.RepoSummary) int {
	return sum.ForkCount
}

func (forkFamily) aggregateTypes() []types.EventType {
	return []types.EventType{types.EventForkAggregateStats}
}

func (forkFamily) aggregateEvents(repo types.Artifact, sum *github.RepoSummary, day time.Time) []types.Event {
	if sum.ForkCount == 0 {
		return nil
	}
	return []types.Event{
		types.NewAggregateStatsEvent(types.EventForkAggregateStats, day, repo, float64(sum.ForkCount)),
	}
}

func (f forkFamily) walkDetails(ctx context.Context, loc github.Locator, repo types.Artifact, r timerange.Range, submit submitFunc) error {
	pager := f.e.client.Forks(loc.Owner, loc.Name, f.e.cfg.PageSize, f.e.cfg.Gate)
	for pager.Next(ctx) {
		node := pager.Current()
		if node.CreatedAt.Before(r.Start) {
			// Descending createdAt order: everything further is older still.
			break
		}
		if node.CreatedAt.After(r.End) {
			continue
		}
		actor := types.NewArtifact(types.NamespaceGithub, types.ArtifactUser, node.Owner.Login)
		if err := submit(types.NewForkedEvent(node.CreatedAt, repo, actor)); err != nil {
			return err
		}
	}
	return pager.Err()
}
