package github

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/eventflow/types"
)

func TestFetchRepoSummary(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
          "data": {
            "repository": {
              "nameWithOwner": "acme/widget",
              "stargazerCount": 321,
              "forkCount": 12,
              "watchers": {"totalCount": 45}
            },
            "rateLimit": {"limit": 5000, "cost": 1, "remaining": 4999, "resetAt": "2024-03-10T12:00:00Z"}
          }
        }`))
	})

	summary, rl, err := client.FetchRepoSummary(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", summary.NameWithOwner)
	assert.Equal(t, 321, summary.StargazerCount)
	assert.Equal(t, 12, summary.ForkCount)
	assert.Equal(t, 45, summary.Watchers.TotalCount)
	assert.Equal(t, 4999, rl.Remaining)
}

func TestFetchRepoSummary_NotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"repository": null, "rateLimit": {"limit": 5000, "cost": 1, "remaining": 4999, "resetAt": "2024-03-10T12:00:00Z"}}}`))
	})

	_, _, err := client.FetchRepoSummary(context.Background(), "acme", "gone")
	require.Error(t, err)
	assert.Equal(t, types.ErrRemoteFetchFailure, types.GetErrorCode(err))
}
