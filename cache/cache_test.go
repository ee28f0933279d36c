package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d-1)
}

func daysRange(t *testing.T, from, to int) timerange.Range {
	t.Helper()
	r, err := timerange.New(day(from), day(to))
	require.NoError(t, err)
	return r
}

func testRepo() types.Artifact {
	return types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, "acme/widget")
}

func TestGetUncollectedRange_EmptyCache(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	requested := daysRange(t, 1, 10)
	got, err := c.GetUncollectedRange(ctx, testRepo(), "stars", requested)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(requested.Start) && got.End.Equal(requested.End),
		"empty cache must return the requested range unchanged, got %s", got)
}

func TestGetUncollectedRange_BoundaryExactSubtraction(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 1, 10)))

	got, err := c.GetUncollectedRange(ctx, repo, "stars", daysRange(t, 5, 15))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(day(10)), "remainder must start at the stored end, got %s", got)
	assert.True(t, got.End.Equal(day(15)), "remainder must keep the requested end, got %s", got)
}

func TestGetUncollectedRange_FullyCovered(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 1, 31)))

	got, err := c.GetUncollectedRange(ctx, repo, "stars", daysRange(t, 5, 15))
	require.NoError(t, err)
	assert.Nil(t, got, "covered request must return nil")
}

func TestGetUncollectedRange_TailCovered(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 10, 20)))

	got, err := c.GetUncollectedRange(ctx, repo, "stars", daysRange(t, 1, 15))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(day(1)) && got.End.Equal(day(10)),
		"tail-covered request must keep the head, got %s", got)
}

func TestGetUncollectedRange_DisjointStored(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 1, 5)))

	requested := daysRange(t, 10, 20)
	got, err := c.GetUncollectedRange(ctx, repo, "stars", requested)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(requested.Start) && got.End.Equal(requested.End),
		"disjoint stored range covers nothing of the request")
}

func TestGetUncollectedRange_StoredInsideRequest(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 10, 12)))

	requested := daysRange(t, 1, 20)
	got, err := c.GetUncollectedRange(ctx, repo, "stars", requested)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Start.Equal(requested.Start) && got.End.Equal(requested.End),
		"hull subtraction cannot split; whole request is re-fetched")
}

func TestBucketsAndArtifactsAreIsolated(t *testing.T) {
	c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	repo := testRepo()
	other := types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, "acme/gadget")

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 1, 31)))

	requested := daysRange(t, 1, 31)

	got, err := c.GetUncollectedRange(ctx, repo, "forks", requested)
	require.NoError(t, err)
	require.NotNil(t, got, "another bucket must not see the stars record")

	got, err = c.GetUncollectedRange(ctx, other, "stars", requested)
	require.NoError(t, err)
	require.NotNil(t, got, "another artifact must not see the record")
}

func TestRecordCollected_GrowsMonotonically(t *testing.T) {
	store := NewMemoryStore()
	c := NewTimeSeriesCache(store, zap.NewNop())
	ctx := context.Background()
	repo := testRepo()

	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 5, 10)))
	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 8, 20)))
	require.NoError(t, c.RecordCollected(ctx, repo, "stars", daysRange(t, 1, 3)))

	stored, found, err := store.GetRange(ctx, cacheKey(repo, "stars"))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.Start.Equal(day(1)) && stored.End.Equal(day(20)),
		"stored union must be the hull of all recorded ranges, got %s", stored)
}

func TestProperty_RecordedRangesAreCovered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
		ctx := context.Background()
		repo := testRepo()

		start := rapid.IntRange(1, 300).Draw(rt, "start")
		length := rapid.IntRange(0, 60).Draw(rt, "length")
		recorded, err := timerange.New(day(start), day(start+length))
		if err != nil {
			rt.Fatalf("building range: %v", err)
		}

		if err := c.RecordCollected(ctx, repo, "stars", recorded); err != nil {
			rt.Fatalf("recording: %v", err)
		}

		got, err := c.GetUncollectedRange(ctx, repo, "stars", recorded)
		if err != nil {
			rt.Fatalf("lookup: %v", err)
		}
		if got != nil {
			rt.Fatalf("a just-recorded range must be fully covered, got remainder %s", got)
		}
	})
}

func TestProperty_RemainderStaysWithinRequest(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewTimeSeriesCache(NewMemoryStore(), zap.NewNop())
		ctx := context.Background()
		repo := testRepo()

		rs := rapid.IntRange(1, 200).Draw(rt, "recordedStart")
		rl := rapid.IntRange(0, 60).Draw(rt, "recordedLen")
		qs := rapid.IntRange(1, 200).Draw(rt, "requestedStart")
		ql := rapid.IntRange(0, 60).Draw(rt, "requestedLen")

		recorded, _ := timerange.New(day(rs), day(rs+rl))
		requested, _ := timerange.New(day(qs), day(qs+ql))

		if err := c.RecordCollected(ctx, repo, "stars", recorded); err != nil {
			rt.Fatalf("recording: %v", err)
		}
		got, err := c.GetUncollectedRange(ctx, repo, "stars", requested)
		if err != nil {
			rt.Fatalf("lookup: %v", err)
		}
		if got == nil {
			if !recorded.Covers(requested) {
				rt.Fatalf("nil remainder although recorded %s does not cover requested %s", recorded, requested)
			}
			return
		}
		if !requested.Covers(*got) {
			rt.Fatalf("remainder %s escapes the requested range %s", got, requested)
		}
	})
}
