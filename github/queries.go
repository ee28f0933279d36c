package github

import (
	"context"
	"time"

	"github.com/BaSui01/eventflow/types"
)

// rateLimitSelection is appended to every query so the paginator's quota
// gate always has a fresh descriptor.
const rateLimitSelection = `
  rateLimit {
    limit
    cost
    remaining
    resetAt
  }`

const repoSummaryQuery = `
query RepoSummary($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    nameWithOwner
    stargazerCount
    forkCount
    watchers {
      totalCount
    }
  }` + rateLimitSelection + `
}`

const stargazersQuery = `
query Stargazers($owner: String!, $name: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $name) {
    stargazers(first: $first, after: $after, orderBy: {field: STARRED_AT, direction: DESC}) {
      totalCount
      pageInfo {
        hasNextPage
        endCursor
      }
      edges {
        starredAt
        node {
          login
        }
      }
    }
  }` + rateLimitSelection + `
}`

const forksQuery = `
query Forks($owner: String!, $name: String!, $first: Int!, $after: String) {
  repository(owner: $owner, name: $name) {
    forks(first: $first, after: $after, orderBy: {field: CREATED_AT, direction: DESC}) {
      totalCount
      pageInfo {
        hasNextPage
        endCursor
      }
      nodes {
        createdAt
        owner {
          login
        }
      }
    }
  }` + rateLimitSelection + `
}`

// RepoSummary carries the point-in-time totals used for aggregate-stats
// events and for deciding whether a repository needs pagination at all.
type RepoSummary struct {
	NameWithOwner  string `json:"nameWithOwner"`
	StargazerCount int    `json:"stargazerCount"`
	ForkCount      int    `json:"forkCount"`
	Watchers       struct {
		TotalCount int `json:"totalCount"`
	} `json:"watchers"`
}

// StargazerEdge is one star occurrence; starredAt lives on the edge.
type StargazerEdge struct {
	StarredAt time.Time `json:"starredAt"`
	Node      struct {
		Login string `json:"login"`
	} `json:"node"`
}

// ForkNode is one fork occurrence.
type ForkNode struct {
	CreatedAt time.Time `json:"createdAt"`
	Owner     struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// FetchRepoSummary runs the summary query for one repository and returns
// the totals together with the response's rate-limit descriptor.
func (c *Client) FetchRepoSummary(ctx context.Context, owner, name string) (*RepoSummary, RateLimit, error) {
	data, err := c.Query(ctx, repoSummaryQuery, map[string]any{"owner": owner, "name": name})
	if err != nil {
		return nil, RateLimit{}, err
	}

	var payload struct {
		Repository *RepoSummary `json:"repository"`
		RateLimit  RateLimit    `json:"rateLimit"`
	}
	if err := unmarshalData(data, &payload); err != nil {
		return nil, RateLimit{}, err
	}
	if payload.Repository == nil {
		return nil, payload.RateLimit, types.NewError(types.ErrRemoteFetchFailure,
			"repository not found: "+owner+"/"+name)
	}
	return payload.Repository, payload.RateLimit, nil
}

// Stargazers returns a paginator over the repository's stargazer edges in
// descending starredAt order.
func (c *Client) Stargazers(owner, name string, pageSize int, gate GateConfig) *Paginator[StargazerEdge] {
	return NewPaginator[StargazerEdge](c, gate, stargazersQuery,
		map[string]any{"owner": owner, "name": name, "first": pageSize},
		PagePath{"repository", "stargazers"})
}

// Forks returns a paginator over the repository's forks in descending
// createdAt order.
func (c *Client) Forks(owner, name string, pageSize int, gate GateConfig) *Paginator[ForkNode] {
	return NewPaginator[ForkNode](c, gate, forksQuery,
		map[string]any{"owner": owner, "name": name, "first": pageSize},
		PagePath{"repository", "forks"})
}
