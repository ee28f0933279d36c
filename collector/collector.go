// Package collector orchestrates incremental collection: per artifact group
// and metric family it fetches repository summaries, consults the time-series
// cache for the still-uncollected window, drives the paginated fetch
// iterator, submits events through the group recorder, and records the newly
// covered range only after the per-artifact wait reports zero errors.
// Completed artifacts are committed in fixed-size batches.
package collector

import (
	"context"
	"time"

	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// CommitFunc marks one fully collected artifact as committed downstream.
// The scheduler supplies it; families call it once per completed artifact.
type CommitFunc func(ctx context.Context, artifact types.Artifact) error

// Outcome aggregates per-artifact results for one family over one group.
// Failures stay isolated: an artifact appears in exactly one of Collected,
// Skipped, or (via its wrapped error) Errors.
type Outcome struct {
	Family    string
	Group     string
	Collected []types.Artifact
	Skipped   []types.Artifact
	Errors    []error
}

// Failed reports whether any artifact in the group failed.
func (o *Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// MetricCollector is the capability interface one metric family implements.
// Implementations share the collection flow through the composed engine
// rather than a base type.
type MetricCollector interface {
	// Name identifies the family ("stargazers", "forks").
	Name() string
	// Collect gathers the family's events for every artifact in the group
	// over the requested range, committing completed artifacts through
	// commit. The returned error reports only run-fatal conditions (cache
	// store unreachable); per-artifact failures live in the outcome.
	Collect(ctx context.Context, group types.ArtifactGroup, r timerange.Range, commit CommitFunc) (*Outcome, error)
}

// Config tunes the shared collection flow.
type Config struct {
	// PageSize is the GraphQL page size for detail pagination.
	PageSize int `json:"page_size" yaml:"page_size"`
	// CommitBatchSize caps how many artifact commits are in flight at once;
	// commits are issued in fixed-size batches of this many.
	CommitBatchSize int `json:"commit_batch_size" yaml:"commit_batch_size"`
	// WaitTimeout bounds every recorder wait issued by the flow.
	WaitTimeout time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
	// Gate configures the remaining-quota gate applied between pages.
	Gate github.GateConfig `json:"gate" yaml:"gate"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:        100,
		CommitBatchSize: 10,
		WaitTimeout:     recorder.DefaultWaitTimeout,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.CommitBatchSize <= 0 {
		c.CommitBatchSize = def.CommitBatchSize
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = def.WaitTimeout
	}
	return c
}
