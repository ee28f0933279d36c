package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/eventflow/timerange"
)

// redisStore keeps collected-range unions in Redis. Entries carry no TTL:
// the union only ever grows and expiring one would cause a re-fetch of the
// whole window.
type redisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed RangeStore. Keys are stored under
// prefix (default "eventflow:ranges:").
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) RangeStore {
	if prefix == "" {
		prefix = "eventflow:ranges:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// GetRange implements RangeStore.GetRange.
func (s *redisStore) GetRange(ctx context.Context, key string) (timerange.Range, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return timerange.Range{}, false, nil
		}
		return timerange.Range{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var r timerange.Range
	if err := json.Unmarshal(data, &r); err != nil {
		return timerange.Range{}, false, fmt.Errorf("decode stored range for %q: %w", key, err)
	}
	return r, true, nil
}

// SetRange implements RangeStore.SetRange.
func (s *redisStore) SetRange(ctx context.Context, key string, r timerange.Range) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode range for %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}

	s.logger.Debug("stored collected range",
		zap.String("key", key),
		zap.String("range", r.String()),
	)
	return nil
}

// Close implements RangeStore.Close.
func (s *redisStore) Close() error {
	return s.client.Close()
}
