// Package github implements the remote API collaborator for GitHub's
// GraphQL endpoint: an authenticated client with client-side request
// pacing, a quota-aware cursor paginator, repository queries, and token
// sources (static tokens and GitHub App installation tokens).
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/eventflow/types"
)

// DefaultEndpoint is GitHub's public GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// ClientConfig holds the knobs for the GraphQL client.
type ClientConfig struct {
	// Endpoint overrides the GraphQL URL (tests point it at a local server).
	Endpoint string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// RequestsPerSecond paces outgoing calls on the client side, on top of
	// the server-reported quota gate. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the pacing burst size; defaults to 1 when pacing is on.
	Burst int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Client is a minimal GraphQL client for the collection queries. It is safe
// for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	tokens   TokenSource
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient creates a client using the given token source.
func NewClient(cfg ClientConfig, tokens TokenSource, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		tokens:   tokens,
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "github")),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// Query executes one GraphQL call and returns the raw data payload.
// Transport, HTTP and GraphQL-level failures all surface as structured
// errors; no retries happen at this layer.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRemoteFetchFailure, "request pacing interrupted").WithCause(err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrAuthentication, "token source failed").WithCause(err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, types.NewError(types.ErrRemoteFetchFailure, "encode query").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrRemoteFetchFailure, "build request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrRemoteFetchFailure, "graphql call failed").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var envelope graphQLEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, types.NewError(types.ErrRemoteFetchFailure, "decode response").WithCause(err)
	}
	if len(envelope.Errors) > 0 {
		return nil, mapGraphQLErrors(envelope.Errors)
	}
	return envelope.Data, nil
}

// mapHTTPError maps an HTTP status to a structured error with the right
// retryable flag.
func mapHTTPError(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status)
	case http.StatusForbidden:
		// GitHub reports abuse and secondary rate limits as 403.
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return types.NewError(types.ErrRateLimitExhausted, msg).
				WithHTTPStatus(status).
				WithRetryable(true)
		}
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimitExhausted, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrRemoteFetchFailure, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}
}

// mapGraphQLErrors folds the errors array into one structured error.
func mapGraphQLErrors(errs []graphQLError) *types.Error {
	msgs := make([]string, 0, len(errs))
	rateLimited := false
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if e.Type == "RATE_LIMITED" {
			rateLimited = true
		}
	}
	msg := strings.Join(msgs, "; ")
	if rateLimited {
		return types.NewError(types.ErrRateLimitExhausted, msg).WithRetryable(true)
	}
	return types.NewError(types.ErrRemoteFetchFailure, msg)
}

// unmarshalData decodes a data payload into v, wrapping decode failures.
func unmarshalData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return types.NewError(types.ErrRemoteFetchFailure, "decode data payload").WithCause(err)
	}
	return nil
}

// readErrorMessage extracts the message from a GitHub error body, falling
// back to the raw text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return string(data)
}
