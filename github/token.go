package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/types"
)

// TokenSource supplies the bearer token for each API call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticTokenSource returns a fixed personal access token.
type staticTokenSource struct {
	token string
}

// NewStaticTokenSource wraps a personal access token.
func NewStaticTokenSource(token string) TokenSource {
	return &staticTokenSource{token: token}
}

func (s *staticTokenSource) Token(context.Context) (string, error) {
	if s.token == "" {
		return "", types.NewError(types.ErrAuthentication, "empty access token")
	}
	return s.token, nil
}

// DefaultAPIBase is GitHub's REST base used for the installation token
// exchange.
const DefaultAPIBase = "https://api.github.com"

// appJWTTTL is the validity GitHub allows on an app JWT (10 minutes max;
// we stay under it).
const appJWTTTL = 9 * time.Minute

// appTokenSource authenticates as a GitHub App: it signs a short-lived app
// JWT with the app's private key and exchanges it for an installation
// access token, cached until shortly before expiry.
type appTokenSource struct {
	appID          string
	installationID int64
	key            *rsa.PrivateKey
	apiBase        string
	http           *http.Client
	logger         *zap.Logger

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// AppTokenOptions configures an App token source.
type AppTokenOptions struct {
	// APIBase overrides the REST endpoint (tests point it at a local server).
	APIBase string

	// Timeout bounds the exchange round trip.
	Timeout time.Duration
}

// NewAppTokenSource builds a token source for the given App and
// installation. privateKeyPEM is the app's RSA key in PEM form.
func NewAppTokenSource(appID string, installationID int64, privateKeyPEM []byte, opts AppTokenOptions, logger *zap.Logger) (TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, types.NewError(types.ErrAuthentication, "parse app private key").WithCause(err)
	}
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &appTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		apiBase:        opts.APIBase,
		http:           &http.Client{Timeout: opts.Timeout},
		logger:         logger.With(zap.String("component", "github-app-auth")),
	}, nil
}

// Token returns a valid installation token, exchanging a fresh app JWT when
// the cached one is within a minute of expiry.
func (s *appTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && time.Until(s.expiry) > time.Minute {
		return s.cached, nil
	}

	appJWT, err := s.signAppJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.apiBase, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "build token exchange request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "installation token exchange failed").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", types.NewError(types.ErrAuthentication,
			"installation token exchange: "+readErrorMessage(resp.Body)).
			WithHTTPStatus(resp.StatusCode)
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", types.NewError(types.ErrAuthentication, "decode installation token").WithCause(err)
	}

	s.cached = payload.Token
	s.expiry = payload.ExpiresAt
	s.logger.Debug("exchanged installation token",
		zap.Int64("installation_id", s.installationID),
		zap.Time("expires_at", s.expiry),
	)
	return s.cached, nil
}

// signAppJWT signs the short-lived RS256 JWT GitHub requires for app
// endpoints. IssuedAt is backdated a minute to absorb clock drift.
func (s *appTokenSource) signAppJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", types.NewError(types.ErrAuthentication, "sign app jwt").WithCause(err)
	}
	return signed, nil
}
