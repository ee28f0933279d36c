package collector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/eventflow/cache"
	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// submitFunc hands one built event to the group recorder.
type submitFunc func(ev types.Event) error

// family is what differs between metric families; the engine drives the
// shared flow around it.
type family interface {
	name() string
	// bucket keys the family's collected ranges in the time-series cache.
	bucket() string
	// detailCount is the summary total gating the family's detail walk.
	detailCount(sum *github.RepoSummary) int
	// aggregateTypes lists the event types the family may emit as daily
	// aggregates, in wait order.
	aggregateTypes() []types.EventType
	// aggregateEvents builds the family's gated daily aggregate events,
	// stamped with day.
	aggregateEvents(repo types.Artifact, sum *github.RepoSummary, day time.Time) []types.Event
	// walkDetails pages through the family's edges inside r, submitting one
	// event per in-range edge. The walk stops at the first edge older than
	// r.Start, relying on the API's descending time order.
	walkDetails(ctx context.Context, loc github.Locator, repo types.Artifact, r timerange.Range, submit submitFunc) error
}

// engine is the composed helper shared by metric families: summary fetch,
// zero-edge skip, cache consult, aggregate emission, wait ordering, range
// recording, and batched commits.
type engine struct {
	client *github.Client
	cache  *cache.TimeSeriesCache
	rec    *recorder.EventRecorder
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func newEngine(client *github.Client, ts *cache.TimeSeriesCache, rec *recorder.EventRecorder, cfg Config, logger *zap.Logger, familyName string) *engine {
	return &engine{
		client: client,
		cache:  ts,
		rec:    rec,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("component", "collector"), zap.String("family", familyName)),
		now:    time.Now,
	}
}

// artifactRun tracks one artifact through the collection phases.
type artifactRun struct {
	artifact    types.Artifact
	uncollected *timerange.Range
	submitted   bool
	skipped     bool
	reason      string
	err         error
}

func (r *artifactRun) fail(err error) {
	r.err = err
}

func (r *artifactRun) skip(reason string) {
	r.skipped = true
	r.reason = reason
}

// collect runs the family over the group. Submission happens per artifact in
// group order; aggregate event types are waited on before any per-artifact
// wait; the collected range is recorded only for artifacts whose wait
// reported zero errors; commits go out in fixed-size batches. A non-nil
// error means the run itself could not proceed (cache store unreachable);
// per-artifact failures are isolated inside the outcome.
func (e *engine) collect(ctx context.Context, fam family, group types.ArtifactGroup, r timerange.Range, commit CommitFunc) (*Outcome, error) {
	out := &Outcome{Family: fam.name(), Group: group.Name}
	grp := recorder.NewGroupRecorder(e.rec, e.cfg.WaitTimeout, e.logger)
	runs := make([]*artifactRun, 0, len(group.Artifacts))

	e.logger.Info("collecting group",
		zap.String("group", group.Name),
		zap.Int("artifacts", len(group.Artifacts)),
		zap.String("range", r.String()),
	)

	for i := range group.Artifacts {
		run := &artifactRun{artifact: group.Artifacts[i]}
		runs = append(runs, run)

		if err := e.submitArtifact(ctx, fam, grp, run, r); err != nil {
			return out, err
		}
	}

	// Aggregate-stats handles are waited on by event type before any
	// per-artifact wait, so the daily totals settle ahead of the detail
	// backfill confirmation.
	for _, typ := range fam.aggregateTypes() {
		res := grp.WaitEventType(ctx, typ)
		if len(res.Errors) > 0 {
			e.logger.Warn("aggregate wait reported failures",
				zap.String("event_type", string(typ)),
				zap.Int("failures", len(res.Errors)),
			)
		}
	}

	completed := make([]types.Artifact, 0, len(runs))
	for _, run := range runs {
		e.settleArtifact(ctx, fam, grp, run)

		switch {
		case run.err != nil:
			out.Errors = append(out.Errors, fmt.Errorf("%s: %w", run.artifact.Key(), run.err))
			e.logger.Warn("artifact collection failed",
				zap.String("artifact", run.artifact.Key()),
				zap.Error(run.err),
			)
		case run.skipped:
			out.Skipped = append(out.Skipped, run.artifact)
			e.logger.Debug("artifact skipped",
				zap.String("artifact", run.artifact.Key()),
				zap.String("reason", run.reason),
			)
		default:
			completed = append(completed, run.artifact)
		}
	}

	e.commitBatches(ctx, completed, commit, out)

	e.logger.Info("group collected",
		zap.String("group", group.Name),
		zap.Int("collected", len(out.Collected)),
		zap.Int("skipped", len(out.Skipped)),
		zap.Int("failed", len(out.Errors)),
	)
	return out, nil
}

// submitArtifact runs the submission phase for one artifact: summary fetch,
// zero-edge skip, gated aggregates, cache consult, detail walk. A returned
// error aborts the whole run; artifact-level failures land in run.err.
func (e *engine) submitArtifact(ctx context.Context, fam family, grp *recorder.GroupRecorder, run *artifactRun, r timerange.Range) error {
	artifact := run.artifact

	if artifact.Namespace != types.NamespaceGithub || artifact.Type != types.ArtifactRepository {
		run.skip("not a github repository")
		return nil
	}

	loc, err := github.ParseLocator(artifact.Name)
	if err != nil {
		run.fail(err)
		return nil
	}

	sum, rl, err := e.client.FetchRepoSummary(ctx, loc.Owner, loc.Name)
	if err != nil {
		run.fail(err)
		return nil
	}
	e.logger.Debug("repository summary",
		zap.String("repo", loc.String()),
		zap.Int("stars", sum.StargazerCount),
		zap.Int("forks", sum.ForkCount),
		zap.Int("watchers", sum.Watchers.TotalCount),
		zap.Int("rate_remaining", rl.Remaining),
	)

	// Nothing to paginate for either family: skip the artifact entirely
	// this run, aggregates included.
	if sum.StargazerCount == 0 && sum.ForkCount == 0 {
		run.skip("no stargazer or fork edges")
		return nil
	}

	aggs := fam.aggregateEvents(artifact, sum, e.now())
	for i := range aggs {
		if _, rerr := grp.Record(ctx, &aggs[i]); rerr != nil {
			run.fail(rerr)
			return nil
		}
		run.submitted = true
	}

	if fam.detailCount(sum) == 0 {
		if !run.submitted {
			run.skip("no " + fam.name() + " edges")
		}
		return nil
	}

	uncollected, err := e.cache.GetUncollectedRange(ctx, artifact, fam.bucket(), r)
	if err != nil {
		// The cache deciding what to fetch is a run-wide resource; without
		// it every remaining artifact would fail the same way.
		return err
	}
	if uncollected == nil {
		e.logger.Debug("range already collected",
			zap.String("artifact", artifact.Key()),
			zap.String("bucket", fam.bucket()),
		)
		return nil
	}
	run.uncollected = uncollected

	err = fam.walkDetails(ctx, loc, artifact, *uncollected, func(ev types.Event) error {
		if _, rerr := grp.Record(ctx, &ev); rerr != nil {
			return rerr
		}
		run.submitted = true
		return nil
	})
	if err != nil {
		// The walk failed partway; submitted events stay in flight but the
		// range is not recorded, so the next run re-fetches it and sourceId
		// dedupe swallows the repeats.
		run.fail(err)
	}
	return nil
}

// settleArtifact waits on the artifact's handles and records the collected
// range once the wait reports zero errors.
func (e *engine) settleArtifact(ctx context.Context, fam family, grp *recorder.GroupRecorder, run *artifactRun) {
	if run.err != nil || run.skipped {
		return
	}

	if run.submitted {
		res := grp.WaitArtifact(ctx, run.artifact)
		if len(res.Errors) > 0 {
			run.fail(types.NewError(types.ErrRecordWriteFailure,
				fmt.Sprintf("%d of %d events unconfirmed", len(res.Errors), res.Len())).
				WithCause(res.Errors[0]).WithRetryable(true))
			return
		}
	}

	if run.uncollected != nil {
		if err := e.cache.RecordCollected(ctx, run.artifact, fam.bucket(), *run.uncollected); err != nil {
			// Events are durable; only the coverage marker is missing. The
			// next run re-fetches the window and dedupes.
			run.fail(err)
			return
		}
		e.logger.Debug("recorded collected range",
			zap.String("artifact", run.artifact.Key()),
			zap.String("bucket", fam.bucket()),
			zap.String("collected", run.uncollected.String()),
		)
	}
}

// commitBatches issues commits in fixed-size batches so downstream write
// pressure stays capped regardless of group size. Failures stay per
// artifact; one failed commit never blocks its batch siblings.
func (e *engine) commitBatches(ctx context.Context, completed []types.Artifact, commit CommitFunc, out *Outcome) {
	for start := 0; start < len(completed); start += e.cfg.CommitBatchSize {
		end := start + e.cfg.CommitBatchSize
		if end > len(completed) {
			end = len(completed)
		}
		batch := completed[start:end]

		errs := make([]error, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i := range batch {
			i := i
			g.Go(func() error {
				errs[i] = commit(gctx, batch[i])
				return nil // collect every result, never cancel siblings
			})
		}
		_ = g.Wait()

		for i, err := range errs {
			if err != nil {
				out.Errors = append(out.Errors, fmt.Errorf("%s: commit: %w", batch[i].Key(), err))
				continue
			}
			out.Collected = append(out.Collected, batch[i])
		}
	}
}
