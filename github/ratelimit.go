package github

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/types"
)

// RateLimit is the quota descriptor GitHub returns in every GraphQL
// response when the query selects the rateLimit field.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Cost      int       `json:"cost"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// GateConfig tunes the quota gate sitting in front of each page fetch.
type GateConfig struct {
	// Threshold is the remaining-quota floor. A descriptor reporting fewer
	// remaining points suspends the caller until ResetAt.
	Threshold int

	// MaxWait bounds the suspension. A reset further away than this fails
	// with RATE_LIMIT_EXHAUSTED instead of sleeping.
	MaxWait time.Duration

	// Pad is added to the computed sleep so the reset has actually happened
	// server-side when the next call goes out.
	Pad time.Duration
}

func (c GateConfig) withDefaults() GateConfig {
	if c.Threshold <= 0 {
		c.Threshold = 100
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 90 * time.Minute
	}
	if c.Pad <= 0 {
		c.Pad = 2 * time.Second
	}
	return c
}

// rateLimitGate suspends callers when the server-reported quota drops below
// the threshold. It is the engine's one deliberate suspension point besides
// I/O and recorder waits.
type rateLimitGate struct {
	cfg    GateConfig
	logger *zap.Logger
}

func newRateLimitGate(cfg GateConfig, logger *zap.Logger) *rateLimitGate {
	return &rateLimitGate{cfg: cfg.withDefaults(), logger: logger}
}

// waitIfLow blocks until rl.ResetAt when remaining quota is under the
// threshold. It returns RATE_LIMIT_EXHAUSTED when the required wait exceeds
// MaxWait, and the context error when cancelled mid-sleep.
func (g *rateLimitGate) waitIfLow(ctx context.Context, rl RateLimit) error {
	if rl.Remaining >= g.cfg.Threshold {
		return nil
	}

	wait := time.Until(rl.ResetAt)
	if wait <= 0 {
		return nil
	}
	wait += g.cfg.Pad
	if wait > g.cfg.MaxWait {
		return types.NewError(types.ErrRateLimitExhausted,
			fmt.Sprintf("quota %d below threshold %d and reset %s away exceeds wait budget %s",
				rl.Remaining, g.cfg.Threshold, wait, g.cfg.MaxWait))
	}

	g.logger.Warn("rate limit low, suspending until reset",
		zap.Int("remaining", rl.Remaining),
		zap.Int("threshold", g.cfg.Threshold),
		zap.Time("reset_at", rl.ResetAt),
		zap.Duration("wait", wait),
	)

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
