package eventflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/github"
	"github.com/BaSui01/eventflow/store"
	"github.com/BaSui01/eventflow/types"
)

var testDBSeq atomic.Int64

// memoryDatabase returns options for a private in-memory sqlite database.
// One pooled connection keeps the database alive for the engine's lifetime.
func memoryDatabase() []Option {
	dsn := fmt.Sprintf("file:eventflow_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	return []Option{
		WithDatabase(store.DriverSQLite, dsn),
		WithPool(store.PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}),
	}
}

// graphqlStub answers the summary query with fixed totals and every
// pagination query with a single empty page.
func graphqlStub(t *testing.T, repo string, stars, forks, watchers int) *httptest.Server {
	t.Helper()

	rateLimit := fmt.Sprintf(`"rateLimit": {"limit": 5000, "cost": 1, "remaining": 4999, "resetAt": %q}`,
		time.Now().Add(time.Hour).UTC().Format(time.RFC3339))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch {
		case strings.Contains(req.Query, "stargazers("):
			fmt.Fprintf(w, `{"data": {"repository": {"stargazers": {"totalCount": 0, "pageInfo": {"hasNextPage": false, "endCursor": ""}, "edges": []}}, %s}}`, rateLimit)
		case strings.Contains(req.Query, "forks("):
			fmt.Fprintf(w, `{"data": {"repository": {"forks": {"totalCount": 0, "pageInfo": {"hasNextPage": false, "endCursor": ""}, "nodes": []}}, %s}}`, rateLimit)
		default:
			fmt.Fprintf(w, `{"data": {"repository": {"nameWithOwner": %q, "stargazerCount": %d, "forkCount": %d, "watchers": {"totalCount": %d}}, %s}}`,
				repo, stars, forks, watchers, rateLimit)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(memoryDatabase()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials are required")
}

func TestNew_UnknownFamily(t *testing.T) {
	opts := append(memoryDatabase(),
		WithToken("tok"),
		WithFamilies("commits"),
	)
	_, err := New(opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric family "commits"`)
}

func TestNew_NoFamilies(t *testing.T) {
	opts := append(memoryDatabase(),
		WithToken("tok"),
		WithFamilies(),
	)
	_, err := New(opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one metric family")
}

func TestEngine_CollectEndToEnd(t *testing.T) {
	srv := graphqlStub(t, "golang/go", 120, 30, 45)

	opts := append(memoryDatabase(),
		WithToken("tok"),
		WithClientConfig(github.ClientConfig{Endpoint: srv.URL, Timeout: 5 * time.Second}),
	)
	e, err := New(opts...)
	require.NoError(t, err)
	defer e.Close()

	report, err := e.Collect(context.Background(),
		"2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", "golang/go")
	require.NoError(t, err)

	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Failed())
	// Both default families ran over the single group.
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 2, report.TotalCollected())

	// The daily aggregates landed in the owned store.
	repo, err := e.Store().GetOrCreateArtifact(context.Background(),
		types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, "golang/go"))
	require.NoError(t, err)

	stars, err := e.Store().CountEventsByType(context.Background(), repo.ID, types.EventStarAggregateStats)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stars)

	forks, err := e.Store().CountEventsByType(context.Background(), repo.ID, types.EventForkAggregateStats)
	require.NoError(t, err)
	assert.Equal(t, int64(1), forks)

	stats := e.RecorderStats()
	assert.Greater(t, stats.Committed, int64(0))
	assert.Zero(t, stats.Failed)
}

func TestEngine_CollectFamilySubset(t *testing.T) {
	srv := graphqlStub(t, "uber-go/zap", 10, 2, 3)

	opts := append(memoryDatabase(),
		WithToken("tok"),
		WithClientConfig(github.ClientConfig{Endpoint: srv.URL, Timeout: 5 * time.Second}),
		WithFamilies(FamilyForks),
	)
	e, err := New(opts...)
	require.NoError(t, err)
	defer e.Close()

	report, err := e.Collect(context.Background(),
		"2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", "uber-go/zap")
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, FamilyForks, report.Outcomes[0].Family)
}

func TestEngine_CollectRejectsBadInput(t *testing.T) {
	opts := append(memoryDatabase(), WithToken("tok"))
	e, err := New(opts...)
	require.NoError(t, err)
	defer e.Close()

	t.Run("malformed range", func(t *testing.T) {
		_, err := e.Collect(context.Background(), "not-a-time", "2024-02-01T00:00:00Z", "golang/go")
		require.Error(t, err)
		assert.Equal(t, types.ErrMalformedTimestamp, types.GetErrorCode(err))
	})

	t.Run("malformed locator", func(t *testing.T) {
		_, err := e.Collect(context.Background(), "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", "not-a-repo")
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidArtifact, types.GetErrorCode(err))
	})
}

func TestEngine_RunResumeSkipsCompletedGroups(t *testing.T) {
	srv := graphqlStub(t, "golang/go", 120, 30, 45)

	opts := append(memoryDatabase(),
		WithToken("tok"),
		WithClientConfig(github.ClientConfig{Endpoint: srv.URL, Timeout: 5 * time.Second}),
	)
	e, err := New(opts...)
	require.NoError(t, err)
	defer e.Close()

	first, err := e.Collect(context.Background(),
		"2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z", "golang/go")
	require.NoError(t, err)
	require.False(t, first.Failed())

	// Same group and range again, resuming: every family skips.
	r := first.Range
	groups := []types.ArtifactGroup{types.NewArtifactGroup("default",
		types.NewArtifact(types.NamespaceGithub, types.ArtifactRepository, "golang/go"))}

	second, err := e.Run(context.Background(), groups, r, true)
	require.NoError(t, err)
	assert.Empty(t, second.Outcomes)
	assert.Len(t, second.Resumed, 2)
}

func TestEngine_CloseIsIdempotentForCallerOwnedStore(t *testing.T) {
	dsn := fmt.Sprintf("file:eventflow_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := store.Open(store.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	st, err := store.NewStore(db, store.PoolConfig{MaxIdleConns: 1, MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.AutoMigrate())
	defer st.Close()

	e, err := New(WithStore(st), WithToken("tok"))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// The engine never claimed the store, so it still answers.
	require.NoError(t, st.Ping(context.Background()))
}
