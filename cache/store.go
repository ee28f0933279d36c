package cache

import (
	"context"

	"github.com/BaSui01/eventflow/timerange"
)

// RangeStore is the key-value collaborator holding the collected-range
// union per (artifact identity, bucket) key. Implementations must treat a
// missing key as (zero Range, false, nil), not as an error.
type RangeStore interface {
	// GetRange returns the stored union for key and whether it exists.
	GetRange(ctx context.Context, key string) (timerange.Range, bool, error)

	// SetRange replaces the stored union for key.
	SetRange(ctx context.Context, key string, r timerange.Range) error

	// Close releases any resources held by the store.
	Close() error
}
