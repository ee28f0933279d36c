package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/types"
)

// PagePath locates the connection object inside a GraphQL data payload,
// e.g. {"repository", "stargazers"}. Supplying the path per query lets one
// paginator serve every query shape.
type PagePath []string

// PageInfo is GitHub's standard connection pagination descriptor.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// connection is the decoded shape at the end of a PagePath. Queries select
// either edges (when fields live on the edge itself) or nodes.
type connection struct {
	TotalCount int             `json:"totalCount"`
	PageInfo   PageInfo        `json:"pageInfo"`
	Edges      json.RawMessage `json:"edges"`
	Nodes      json.RawMessage `json:"nodes"`
}

// Paginator lazily walks a cursor-paginated connection, yielding decoded
// items one at a time. It is a pull iterator: the consumer calls Next until
// it returns false, then checks Err. Stopping early simply means not
// calling Next again; no further requests are issued.
//
// Before each page after the first, the paginator consults the previous
// response's rate-limit descriptor and suspends until the reported reset
// when remaining quota is under the gate threshold.
type Paginator[T any] struct {
	client *Client
	gate   *rateLimitGate
	query  string
	vars   map[string]any
	path   PagePath
	logger *zap.Logger

	items    []T
	idx      int
	current  T
	cursor   string
	started  bool
	hasNext  bool
	err      error
	pages    int
	lastRate RateLimit
}

// NewPaginator builds a paginator over query. vars must not contain "after";
// the paginator owns the cursor. The connection at path must select
// pageInfo { hasNextPage endCursor }, and the query should select
// rateLimit { limit cost remaining resetAt } at the top level for the quota
// gate to engage.
func NewPaginator[T any](client *Client, gate GateConfig, query string, vars map[string]any, path PagePath) *Paginator[T] {
	copied := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		copied[k] = v
	}
	return &Paginator[T]{
		client: client,
		gate:   newRateLimitGate(gate, client.logger),
		query:  query,
		vars:   copied,
		path:   path,
		logger: client.logger.With(zap.String("path", strings.Join(path, "."))),
	}
}

// Next advances to the next item, fetching pages as needed. It returns
// false when the sequence is exhausted or a fetch failed; distinguish the
// two with Err.
func (p *Paginator[T]) Next(ctx context.Context) bool {
	if p.err != nil {
		return false
	}
	for p.idx >= len(p.items) {
		if p.started && !p.hasNext {
			return false
		}
		if err := p.fetchPage(ctx); err != nil {
			p.err = err
			return false
		}
	}
	p.current = p.items[p.idx]
	p.idx++
	return true
}

// Current returns the item produced by the last successful Next.
func (p *Paginator[T]) Current() T {
	return p.current
}

// Err returns the failure that terminated the iteration, if any. A transport
// or decode failure on any page fails the whole iteration.
func (p *Paginator[T]) Err() error {
	return p.err
}

// Pages returns the number of pages fetched so far.
func (p *Paginator[T]) Pages() int {
	return p.pages
}

// LastRateLimit returns the most recent quota descriptor, zero before the
// first page.
func (p *Paginator[T]) LastRateLimit() RateLimit {
	return p.lastRate
}

func (p *Paginator[T]) fetchPage(ctx context.Context) error {
	if p.started {
		if err := p.gate.waitIfLow(ctx, p.lastRate); err != nil {
			return err
		}
		p.vars["after"] = p.cursor
	}

	data, err := p.client.Query(ctx, p.query, p.vars)
	if err != nil {
		return err
	}
	p.started = true
	p.pages++

	if rl, ok := extractRateLimit(data); ok {
		p.lastRate = rl
	}

	conn, err := walkPath(data, p.path)
	if err != nil {
		return err
	}

	raw := conn.Edges
	if raw == nil {
		raw = conn.Nodes
	}
	var items []T
	if raw != nil {
		if err := json.Unmarshal(raw, &items); err != nil {
			return types.NewError(types.ErrRemoteFetchFailure,
				fmt.Sprintf("decode items at %s", strings.Join(p.path, "."))).WithCause(err)
		}
	}

	p.items = items
	p.idx = 0
	p.hasNext = conn.PageInfo.HasNextPage
	p.cursor = conn.PageInfo.EndCursor

	p.logger.Debug("fetched page",
		zap.Int("page", p.pages),
		zap.Int("items", len(items)),
		zap.Bool("has_next", p.hasNext),
		zap.Int("quota_remaining", p.lastRate.Remaining),
	)
	return nil
}

// extractRateLimit pulls the top-level rateLimit object out of the data
// payload. Queries that do not select it simply leave the gate disengaged.
func extractRateLimit(data json.RawMessage) (RateLimit, bool) {
	var top struct {
		RateLimit *RateLimit `json:"rateLimit"`
	}
	if err := json.Unmarshal(data, &top); err != nil || top.RateLimit == nil {
		return RateLimit{}, false
	}
	return *top.RateLimit, true
}

// walkPath descends the data payload key by key and decodes the connection
// found at the end.
func walkPath(data json.RawMessage, path PagePath) (*connection, error) {
	node := data
	for i, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			return nil, types.NewError(types.ErrRemoteFetchFailure,
				fmt.Sprintf("response not an object at %s", strings.Join(path[:i], "."))).WithCause(err)
		}
		next, ok := obj[key]
		if !ok || string(next) == "null" {
			return nil, types.NewError(types.ErrRemoteFetchFailure,
				fmt.Sprintf("response missing %s", strings.Join(path[:i+1], ".")))
		}
		node = next
	}

	var conn connection
	if err := json.Unmarshal(node, &conn); err != nil {
		return nil, types.NewError(types.ErrRemoteFetchFailure,
			fmt.Sprintf("decode connection at %s", strings.Join(path, "."))).WithCause(err)
	}
	return &conn, nil
}
