// Package cache implements the time-series cache deciding which sub-range
// of a requested time window still needs fetching for an artifact and
// metric bucket, backed by a pluggable RangeStore (Redis in production,
// in-memory for tests).
package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// TimeSeriesCache tracks, per (artifact identity, bucket), the union of all
// time ranges already collected. The stored union only ever grows.
//
// Callers must record a range only after every event derived from it was
// durably committed: commit first, record second. A crash between the two
// leaves the range uncollected, and the re-fetch is made safe by sourceId
// idempotency at the store layer.
type TimeSeriesCache struct {
	store  RangeStore
	logger *zap.Logger
}

// NewTimeSeriesCache creates a cache over the given range store.
func NewTimeSeriesCache(store RangeStore, logger *zap.Logger) *TimeSeriesCache {
	return &TimeSeriesCache{
		store:  store,
		logger: logger.With(zap.String("component", "tscache")),
	}
}

// cacheKey builds the store key for an artifact and bucket.
func cacheKey(artifact types.Artifact, bucket string) string {
	return fmt.Sprintf("%s:%s", artifact.Key(), bucket)
}

// GetUncollectedRange returns the sub-range of requested not yet covered by
// the stored union for artifact+bucket, or nil when requested is fully
// covered. With no prior record, requested is returned unchanged.
//
// The union is kept as a single hull, so a stored range strictly inside the
// requested one cannot be subtracted; the whole request is returned and the
// overlap re-fetch is absorbed by sourceId idempotency. Subtraction never
// under-reports: the result always contains every uncovered instant.
func (c *TimeSeriesCache) GetUncollectedRange(ctx context.Context, artifact types.Artifact, bucket string, requested timerange.Range) (*timerange.Range, error) {
	key := cacheKey(artifact, bucket)

	stored, found, err := c.store.GetRange(ctx, key)
	if err != nil {
		return nil, types.NewError(types.ErrCacheUnavailable,
			fmt.Sprintf("range lookup failed for %s", key)).WithCause(err)
	}
	if !found {
		return &requested, nil
	}

	if !timerange.Intersects(stored, requested, true) {
		return &requested, nil
	}
	if stored.Covers(requested) {
		c.logger.Debug("range fully collected",
			zap.String("key", key),
			zap.String("requested", requested.String()),
		)
		return nil, nil
	}

	remainder := requested
	switch {
	case !stored.Start.After(requested.Start):
		// Head covered; the remainder starts at the stored end. The shared
		// boundary instant is re-fetched, which inclusive intersection and
		// sourceId idempotency make harmless.
		remainder.Start = stored.End
	case !stored.End.Before(requested.End):
		// Tail covered.
		remainder.End = stored.Start
	default:
		// Stored union sits strictly inside the request; hull subtraction
		// cannot split, so re-fetch the whole window.
	}

	c.logger.Debug("computed uncollected remainder",
		zap.String("key", key),
		zap.String("requested", requested.String()),
		zap.String("stored", stored.String()),
		zap.String("remainder", remainder.String()),
	)
	return &remainder, nil
}

// RecordCollected merges collected into the stored union for
// artifact+bucket. The stored value monotonically grows toward the hull of
// everything ever recorded.
func (c *TimeSeriesCache) RecordCollected(ctx context.Context, artifact types.Artifact, bucket string, collected timerange.Range) error {
	key := cacheKey(artifact, bucket)

	stored, found, err := c.store.GetRange(ctx, key)
	if err != nil {
		return types.NewError(types.ErrCacheUnavailable,
			fmt.Sprintf("range lookup failed for %s", key)).WithCause(err)
	}

	merged := collected
	if found {
		merged = timerange.Union(stored, collected)
	}
	if err := c.store.SetRange(ctx, key, merged); err != nil {
		return types.NewError(types.ErrCacheUnavailable,
			fmt.Sprintf("range write failed for %s", key)).WithCause(err)
	}

	c.logger.Debug("recorded collected range",
		zap.String("key", key),
		zap.String("collected", collected.String()),
		zap.String("union", merged.String()),
	)
	return nil
}
