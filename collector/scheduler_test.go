package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/store"
	"github.com/BaSui01/eventflow/testutil/fixtures"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// fakeCheckpointStore keeps checkpoint history in memory, newest last.
type fakeCheckpointStore struct {
	mu      sync.Mutex
	rows    map[string][]store.CheckpointRow
	saveErr error
	loadErr error
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{rows: make(map[string][]store.CheckpointRow)}
}

func (s *fakeCheckpointStore) SaveCheckpoint(_ context.Context, name string, state any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.rows[name] = append(s.rows[name], store.CheckpointRow{Name: name, State: b, UpdatedAt: time.Now()})
	return nil
}

func (s *fakeCheckpointStore) LatestCheckpoint(_ context.Context, name string) (*store.CheckpointRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	history := s.rows[name]
	if len(history) == 0 {
		return nil, nil
	}
	row := history[len(history)-1]
	return &row, nil
}

func (s *fakeCheckpointStore) saved(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[name])
}

// fakeCollector commits every artifact in the group and reports canned
// failures, recording which groups it was asked to collect.
type fakeCollector struct {
	mu       sync.Mutex
	name     string
	fatalErr error
	rowErrs  []error
	calls    []string
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context, group types.ArtifactGroup, r timerange.Range, commit CommitFunc) (*Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, group.Name)
	f.mu.Unlock()

	out := &Outcome{Family: f.name, Group: group.Name}
	out.Errors = append(out.Errors, f.rowErrs...)
	for _, a := range group.Artifacts {
		if err := commit(ctx, a); err != nil {
			out.Errors = append(out.Errors, err)
			continue
		}
		out.Collected = append(out.Collected, a)
	}
	return out, f.fatalErr
}

func (f *fakeCollector) collected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestScheduler_RunCoversAllFamiliesAndGroups(t *testing.T) {
	stars := &fakeCollector{name: "stargazers"}
	forks := &fakeCollector{name: "forks"}
	cps := newFakeCheckpointStore()
	s := NewScheduler([]MetricCollector{stars, forks}, cps, nil, zap.NewNop())

	groups := []types.ArtifactGroup{
		fixtures.Group("g1", fixtures.Repo("acme", "one")),
		fixtures.Group("g2", fixtures.Repo("acme", "two")),
	}
	r := mustRange(t, fixtures.Day(1), fixtures.Day(5))

	report, err := s.Run(context.Background(), groups, r, false)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Outcomes, 4)
	assert.Equal(t, 4, report.TotalCollected())
	assert.False(t, report.Failed())
	assert.False(t, report.Finished.Before(report.Started))

	assert.Equal(t, []string{"g1", "g2"}, stars.collected())
	assert.Equal(t, []string{"g1", "g2"}, forks.collected())

	row, err := cps.LatestCheckpoint(context.Background(), "group/stargazers/g1")
	require.NoError(t, err)
	require.NotNil(t, row)
	var cp GroupCheckpoint
	require.NoError(t, row.DecodeState(&cp))
	assert.Equal(t, report.RunID, cp.RunID)
	assert.True(t, cp.Completed)
	assert.Equal(t, 1, cp.Collected)

	crow, err := cps.LatestCheckpoint(context.Background(),
		"commit/forks/g2/"+fixtures.Repo("acme", "two").Key())
	require.NoError(t, err)
	require.NotNil(t, crow)
	var cr CommitRecord
	require.NoError(t, crow.DecodeState(&cr))
	assert.Equal(t, report.RunID, cr.RunID)
	assert.Equal(t, "forks", cr.Family)
	assert.Equal(t, "g2", cr.Group)
}

func TestScheduler_ResumeDecisions(t *testing.T) {
	requested := mustRange(t, fixtures.Day(2), fixtures.Day(4))
	wide := mustRange(t, fixtures.Day(1), fixtures.Day(5))
	narrow := mustRange(t, fixtures.Day(2), fixtures.Day(3))

	tests := []struct {
		name     string
		prior    *GroupCheckpoint
		wantSkip bool
	}{
		{"no checkpoint", nil, false},
		{"completed covering", &GroupCheckpoint{Range: wide, Completed: true}, true},
		{"completed exact", &GroupCheckpoint{Range: requested, Completed: true}, true},
		{"completed narrower", &GroupCheckpoint{Range: narrow, Completed: true}, false},
		{"incomplete covering", &GroupCheckpoint{Range: wide, Completed: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stars := &fakeCollector{name: "stargazers"}
			cps := newFakeCheckpointStore()
			if tt.prior != nil {
				require.NoError(t, cps.SaveCheckpoint(context.Background(), "group/stargazers/g1", *tt.prior))
			}

			s := NewScheduler([]MetricCollector{stars}, cps, nil, zap.NewNop())
			report, err := s.Run(context.Background(),
				[]types.ArtifactGroup{fixtures.Group("g1", fixtures.Repo("acme", "one"))}, requested, true)
			require.NoError(t, err)

			if tt.wantSkip {
				assert.Empty(t, stars.collected())
				assert.Equal(t, []string{"stargazers/g1"}, report.Resumed)
			} else {
				assert.Len(t, stars.collected(), 1)
				assert.Empty(t, report.Resumed)
			}
		})
	}
}

func TestScheduler_NoResumeIgnoresCheckpoints(t *testing.T) {
	requested := mustRange(t, fixtures.Day(2), fixtures.Day(4))
	stars := &fakeCollector{name: "stargazers"}
	cps := newFakeCheckpointStore()
	require.NoError(t, cps.SaveCheckpoint(context.Background(), "group/stargazers/g1",
		GroupCheckpoint{Range: mustRange(t, fixtures.Day(1), fixtures.Day(5)), Completed: true}))

	s := NewScheduler([]MetricCollector{stars}, cps, nil, zap.NewNop())
	report, err := s.Run(context.Background(),
		[]types.ArtifactGroup{fixtures.Group("g1", fixtures.Repo("acme", "one"))}, requested, false)
	require.NoError(t, err)
	assert.Len(t, stars.collected(), 1)
	assert.Empty(t, report.Resumed)
}

func TestScheduler_CheckpointLookupFailureCollectsAnyway(t *testing.T) {
	requested := mustRange(t, fixtures.Day(2), fixtures.Day(4))
	stars := &fakeCollector{name: "stargazers"}
	cps := newFakeCheckpointStore()
	cps.loadErr = errors.New("checkpoints table missing")

	s := NewScheduler([]MetricCollector{stars}, cps, nil, zap.NewNop())
	report, err := s.Run(context.Background(),
		[]types.ArtifactGroup{fixtures.Group("g1", fixtures.Repo("acme", "one"))}, requested, true)
	require.NoError(t, err)
	assert.Len(t, stars.collected(), 1)
	assert.Empty(t, report.Resumed)
	assert.Len(t, report.Outcomes, 1)
}

func TestScheduler_RunFatalErrorStopsRun(t *testing.T) {
	stars := &fakeCollector{name: "stargazers",
		fatalErr: types.NewError(types.ErrCacheUnavailable, "range store unreachable")}
	forks := &fakeCollector{name: "forks"}
	cps := newFakeCheckpointStore()
	s := NewScheduler([]MetricCollector{stars, forks}, cps, nil, zap.NewNop())

	groups := []types.ArtifactGroup{
		fixtures.Group("g1", fixtures.Repo("acme", "one")),
		fixtures.Group("g2", fixtures.Repo("acme", "two")),
	}
	r := mustRange(t, fixtures.Day(1), fixtures.Day(5))

	report, err := s.Run(context.Background(), groups, r, false)
	require.Error(t, err)
	assert.Equal(t, types.ErrCacheUnavailable, types.GetErrorCode(err))
	assert.Len(t, report.Outcomes, 1, "the partial report survives the abort")
	assert.Len(t, stars.collected(), 1)
	assert.Empty(t, forks.collected(), "nothing past the fatal failure runs")
	assert.False(t, report.Finished.IsZero())
	assert.Zero(t, cps.saved("group/stargazers/g1"), "an aborted group saves no completion checkpoint")
}

func TestScheduler_FailedOutcomeMarksCheckpointIncomplete(t *testing.T) {
	stars := &fakeCollector{name: "stargazers", rowErrs: []error{errors.New("summary fetch failed")}}
	cps := newFakeCheckpointStore()
	s := NewScheduler([]MetricCollector{stars}, cps, nil, zap.NewNop())

	r := mustRange(t, fixtures.Day(1), fixtures.Day(5))
	groups := []types.ArtifactGroup{fixtures.Group("g1", fixtures.Repo("acme", "one"))}

	report, err := s.Run(context.Background(), groups, r, false)
	require.NoError(t, err)
	assert.True(t, report.Failed())

	row, err := cps.LatestCheckpoint(context.Background(), "group/stargazers/g1")
	require.NoError(t, err)
	require.NotNil(t, row)
	var cp GroupCheckpoint
	require.NoError(t, row.DecodeState(&cp))
	assert.False(t, cp.Completed)
	assert.Equal(t, 1, cp.Failed)

	// A failed group is not resumable: the next resume run collects again.
	report2, err := s.Run(context.Background(), groups, r, true)
	require.NoError(t, err)
	assert.Empty(t, report2.Resumed)
	assert.Len(t, stars.collected(), 2)
}

func TestScheduler_CheckpointSaveFailureDoesNotFailRun(t *testing.T) {
	stars := &fakeCollector{name: "stargazers"}
	cps := newFakeCheckpointStore()
	cps.saveErr = errors.New("disk full")
	s := NewScheduler([]MetricCollector{stars}, cps, nil, zap.NewNop())

	r := mustRange(t, fixtures.Day(1), fixtures.Day(5))
	report, err := s.Run(context.Background(),
		[]types.ArtifactGroup{fixtures.Group("g1", fixtures.Repo("acme", "one"))}, r, false)
	require.NoError(t, err, "checkpoint trouble degrades resumability, not the run")
	require.Len(t, report.Outcomes, 1)
	// Commits flow through the checkpoint store, so their failures do land
	// in the outcome.
	assert.True(t, report.Failed())
}
