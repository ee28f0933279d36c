package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/internal/metrics"
	"github.com/BaSui01/eventflow/store"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// CheckpointStore persists scheduler progress. *store.Store satisfies it.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, name string, state any) error
	LatestCheckpoint(ctx context.Context, name string) (*store.CheckpointRow, error)
}

var _ CheckpointStore = (*store.Store)(nil)

// GroupCheckpoint is the state persisted after a family finishes a group.
// A later run with resume enabled skips the pair when Completed is set and
// the recorded range covers the requested one.
type GroupCheckpoint struct {
	RunID     string          `json:"run_id"`
	Range     timerange.Range `json:"range"`
	Completed bool            `json:"completed"`
	Collected int             `json:"collected"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	At        time.Time       `json:"at"`
}

// CommitRecord is the state persisted once per committed artifact.
type CommitRecord struct {
	RunID    string          `json:"run_id"`
	Family   string          `json:"family"`
	Group    string          `json:"group"`
	Artifact string          `json:"artifact"`
	Range    timerange.Range `json:"range"`
	At       time.Time       `json:"at"`
}

func groupCheckpointName(family, group string) string {
	return "group/" + family + "/" + group
}

func commitCheckpointName(family, group, artifactKey string) string {
	return "commit/" + family + "/" + group + "/" + artifactKey
}

// RunReport summarizes one scheduler run.
type RunReport struct {
	RunID    string
	Range    timerange.Range
	Started  time.Time
	Finished time.Time
	Outcomes []*Outcome
	// Resumed lists "family/group" pairs skipped because a prior completed
	// run already covered the requested range.
	Resumed []string
}

// Failed reports whether any outcome carried per-artifact failures.
func (r *RunReport) Failed() bool {
	for _, out := range r.Outcomes {
		if out.Failed() {
			return true
		}
	}
	return false
}

// TotalCollected counts committed artifacts across all outcomes.
func (r *RunReport) TotalCollected() int {
	n := 0
	for _, out := range r.Outcomes {
		n += len(out.Collected)
	}
	return n
}

// Scheduler runs every registered metric family over the artifact groups,
// stamps each run with a unique ID, and persists checkpoints so interrupted
// work can be resumed.
type Scheduler struct {
	collectors  []MetricCollector
	checkpoints CheckpointStore
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewScheduler wires the scheduler onto its collaborators. m may be nil when
// the process exports no metrics.
func NewScheduler(collectors []MetricCollector, checkpoints CheckpointStore, m *metrics.Collector, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		collectors:  collectors,
		checkpoints: checkpoints,
		metrics:     m,
		logger:      logger.With(zap.String("component", "scheduler")),
	}
}

// Run collects every family over every group for the requested range.
// Per-artifact failures stay inside the outcomes; the returned error reports
// only run-fatal conditions, after which the partial report is still valid.
func (s *Scheduler) Run(ctx context.Context, groups []types.ArtifactGroup, r timerange.Range, resume bool) (*RunReport, error) {
	report := &RunReport{
		RunID:   uuid.New().String(),
		Range:   r,
		Started: time.Now().UTC(),
	}

	s.logger.Info("collection run starting",
		zap.String("run_id", report.RunID),
		zap.String("range", r.String()),
		zap.Int("groups", len(groups)),
		zap.Bool("resume", resume),
	)

	for _, group := range groups {
		for _, mc := range s.collectors {
			name := groupCheckpointName(mc.Name(), group.Name)

			if resume {
				done, err := s.alreadyCompleted(ctx, name, r)
				if err != nil {
					s.logger.Warn("checkpoint lookup failed, collecting anyway",
						zap.String("checkpoint", name),
						zap.Error(err),
					)
				} else if done {
					report.Resumed = append(report.Resumed, mc.Name()+"/"+group.Name)
					s.logger.Info("skipping group completed by a prior run",
						zap.String("family", mc.Name()),
						zap.String("group", group.Name),
					)
					continue
				}
			}

			started := time.Now()
			outcome, err := mc.Collect(ctx, group, r, s.commitFunc(report.RunID, mc.Name(), group.Name, r))
			if outcome != nil {
				report.Outcomes = append(report.Outcomes, outcome)
				s.observe(mc.Name(), outcome, time.Since(started), err)
			}
			if err != nil {
				report.Finished = time.Now().UTC()
				return report, err
			}

			s.saveGroupCheckpoint(ctx, name, report.RunID, r, outcome)
		}
	}

	report.Finished = time.Now().UTC()
	s.logger.Info("collection run finished",
		zap.String("run_id", report.RunID),
		zap.Int("outcomes", len(report.Outcomes)),
		zap.Int("collected", report.TotalCollected()),
		zap.Int("resumed", len(report.Resumed)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, nil
}

// alreadyCompleted reads the latest group checkpoint and decides whether the
// requested range was already fully collected.
func (s *Scheduler) alreadyCompleted(ctx context.Context, name string, r timerange.Range) (bool, error) {
	row, err := s.checkpoints.LatestCheckpoint(ctx, name)
	if err != nil || row == nil {
		return false, err
	}
	var cp GroupCheckpoint
	if err := row.DecodeState(&cp); err != nil {
		return false, err
	}
	return cp.Completed && cp.Range.Covers(r), nil
}

// commitFunc builds the CommitFunc families call once per completed
// artifact: it persists a commit record so progress survives the process.
func (s *Scheduler) commitFunc(runID, family, group string, r timerange.Range) CommitFunc {
	return func(ctx context.Context, artifact types.Artifact) error {
		rec := CommitRecord{
			RunID:    runID,
			Family:   family,
			Group:    group,
			Artifact: artifact.Key(),
			Range:    r,
			At:       time.Now().UTC(),
		}
		if err := s.checkpoints.SaveCheckpoint(ctx, commitCheckpointName(family, group, artifact.Key()), rec); err != nil {
			return err
		}
		s.logger.Info("artifact committed",
			zap.String("artifact", artifact.Key()),
			zap.String("family", family),
			zap.String("run_id", runID),
		)
		return nil
	}
}

func (s *Scheduler) saveGroupCheckpoint(ctx context.Context, name, runID string, r timerange.Range, out *Outcome) {
	cp := GroupCheckpoint{
		RunID:     runID,
		Range:     r,
		Completed: !out.Failed(),
		Collected: len(out.Collected),
		Skipped:   len(out.Skipped),
		Failed:    len(out.Errors),
		At:        time.Now().UTC(),
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, name, cp); err != nil {
		s.logger.Warn("failed to save group checkpoint",
			zap.String("checkpoint", name),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) observe(family string, out *Outcome, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	status := "completed"
	if err != nil || out.Failed() {
		status = "failed"
	}
	s.metrics.RecordRun(family, status, elapsed)
	s.metrics.RecordOutcome(family, len(out.Collected), len(out.Skipped), len(out.Errors))
}
