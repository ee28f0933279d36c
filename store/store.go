// Package store persists events, artifact identities, and collection
// checkpoints behind gorm, speaking postgres, mysql, or sqlite. It is the
// durable half of the recording pipeline: recorder.EventRecorder batches
// submissions and Store commits them, with the event sourceId acting as the
// idempotency key so re-delivery never produces a second row.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/eventflow/recorder"
	"github.com/BaSui01/eventflow/timerange"
	"github.com/BaSui01/eventflow/types"
)

// writeRetries bounds transaction retries for batch inserts.
const writeRetries = 3

// Store is the gorm-backed event store. Safe for concurrent use.
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	// Grow-only identity cache: artifact key -> store ID. Identities are
	// immutable, so a cached ID can never go stale.
	idMu sync.RWMutex
	ids  map[string]int64
}

// NewStore wraps an opened gorm database, applies pool tuning, and starts
// the periodic health check when configured.
func NewStore(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	s := &Store{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "event_store")),
		ids:    make(map[string]int64),
	}

	if config.HealthCheckInterval > 0 {
		go s.healthCheckLoop()
	}

	s.logger.Info("event store initialized",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return s, nil
}

// DB exposes the underlying gorm handle for migrations and diagnostics.
func (s *Store) DB() *gorm.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// AutoMigrate creates or updates the schema for all store models. Suited to
// sqlite and tests; shared deployments run versioned migrations instead (see
// internal/migration).
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&ArtifactRow{}, &EventRow{}, &CheckpointRow{}); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	s.logger.Info("schema migrated",
		zap.Strings("tables", []string{"artifacts", "events", "checkpoints"}))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	return s.sqlDB.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sqlDB.Stats()
}

// Close releases the connection pool. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing event store")

	return s.sqlDB.Close()
}

func (s *Store) healthCheckLoop() {
	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			return
		}
		s.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Ping(ctx); err != nil {
			s.logger.Error("database health check failed", zap.Error(err))
		} else {
			stats := s.Stats()
			s.logger.Debug("database health check passed",
				zap.Int("open_connections", stats.OpenConnections),
				zap.Int("in_use", stats.InUse),
				zap.Int("idle", stats.Idle),
			)
		}
		cancel()
	}
}

// ====== artifacts ======

// GetOrCreateArtifact resolves the stored row for an artifact identity,
// creating it on first sight, and returns the artifact with its store ID
// filled in.
func (s *Store) GetOrCreateArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error) {
	id, err := s.artifactID(ctx, a)
	if err != nil {
		return types.Artifact{}, err
	}
	a.ID = id
	return a, nil
}

// artifactID returns the store ID for an identity, consulting the cache
// first. The write lock is held across the database round trip so one
// identity is resolved at most once per process.
func (s *Store) artifactID(ctx context.Context, a types.Artifact) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	key := a.Key()
	s.idMu.RLock()
	id, ok := s.ids[key]
	s.idMu.RUnlock()
	if ok {
		return id, nil
	}

	s.idMu.Lock()
	defer s.idMu.Unlock()
	if id, ok := s.ids[key]; ok {
		return id, nil
	}

	row, err := s.fetchOrInsertArtifact(ctx, a)
	if err != nil {
		return 0, err
	}
	s.ids[key] = row.ID
	return row.ID, nil
}

// fetchOrInsertArtifact loads the identity row, inserting it when absent.
// The insert carries ON CONFLICT DO NOTHING so a concurrent creator in
// another process cannot fail it; the follow-up select picks up whoever won.
func (s *Store) fetchOrInsertArtifact(ctx context.Context, a types.Artifact) (*ArtifactRow, error) {
	var row ArtifactRow
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND type = ? AND name = ?", string(a.Namespace), string(a.Type), a.Name).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.storeError("lookup artifact", err)
	}

	row = ArtifactRow{Namespace: string(a.Namespace), Type: string(a.Type), Name: a.Name}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error; err != nil {
		return nil, s.storeError("insert artifact", err)
	}
	if row.ID != 0 {
		return &row, nil
	}

	// Lost the insert race; the winner's row exists now.
	if err := s.db.WithContext(ctx).
		Where("namespace = ? AND type = ? AND name = ?", string(a.Namespace), string(a.Type), a.Name).
		First(&row).Error; err != nil {
		return nil, s.storeError("reload artifact", err)
	}
	return &row, nil
}

// ====== events ======

// WriteEvents implements recorder.EventWriter. Artifact references are
// resolved to store IDs, then the deduplicated batch is inserted in one
// retried transaction with conflicting sourceIds skipped. Per-event results
// report Inserted=false for rows that already existed (or repeat within the
// batch) and carry an Err only for events whose artifacts could not be
// resolved. A batch-level database failure is returned as the single error.
func (s *Store) WriteEvents(ctx context.Context, events []*types.Event) ([]recorder.WriteResult, error) {
	results := make([]recorder.WriteResult, len(events))

	rows := make([]EventRow, 0, len(events))
	rowResult := make([]int, 0, len(events)) // rows[k] belongs to results[rowResult[k]]
	inBatch := make(map[string]bool, len(events))

	for i, ev := range events {
		results[i] = recorder.WriteResult{SourceID: ev.SourceID}

		toID, err := s.artifactID(ctx, ev.To)
		if err != nil {
			results[i].Err = err
			continue
		}
		var fromID *int64
		if ev.From != nil {
			id, err := s.artifactID(ctx, *ev.From)
			if err != nil {
				results[i].Err = err
				continue
			}
			fromID = &id
		}

		if inBatch[ev.SourceID] {
			continue // repeat within the batch, the first occurrence wins
		}
		inBatch[ev.SourceID] = true
		rows = append(rows, newEventRow(ev, toID, fromID))
		rowResult = append(rowResult, i)
	}

	if len(rows) == 0 {
		return results, nil
	}

	sourceIDs := make([]string, len(rows))
	for k := range rows {
		sourceIDs[k] = rows[k].SourceID
	}

	// Snapshot which sourceIds already exist so results can report what this
	// call actually inserted; the conflict clause keeps the insert itself
	// silent about skips.
	var existing []string
	if err := s.db.WithContext(ctx).
		Model(&EventRow{}).
		Where("source_id IN ?", sourceIDs).
		Pluck("source_id", &existing).Error; err != nil {
		return nil, s.storeError("query existing events", err)
	}
	existed := make(map[string]bool, len(existing))
	for _, id := range existing {
		existed[id] = true
	}

	err := s.WithTransactionRetry(ctx, writeRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoNothing: true,
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, s.storeError("insert events", err)
	}

	for k, i := range rowResult {
		results[i].Inserted = !existed[rows[k].SourceID]
	}
	return results, nil
}

// EventsByArtifact returns events targeting the artifact inside the range,
// newest first. Intended for verification and diagnostics rather than
// serving traffic.
func (s *Store) EventsByArtifact(ctx context.Context, artifactID int64, r timerange.Range) ([]EventRow, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("to_id = ? AND time >= ? AND time <= ?", artifactID, r.Start.UTC(), r.End.UTC()).
		Order("time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, s.storeError("query events", err)
	}
	return rows, nil
}

// CountEventsByType returns how many stored events target the artifact with
// the given type.
func (s *Store) CountEventsByType(ctx context.Context, artifactID int64, typ types.EventType) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&EventRow{}).
		Where("to_id = ? AND type = ?", artifactID, string(typ)).
		Count(&n).Error
	if err != nil {
		return 0, s.storeError("count events", err)
	}
	return n, nil
}

// ====== checkpoints ======

// SaveCheckpoint appends a named progress marker. History is kept; readers
// take the newest row per name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal checkpoint state").WithCause(err)
	}
	row := CheckpointRow{Name: name, State: payload}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.storeError("save checkpoint", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint recorded under name,
// or nil when none exists.
func (s *Store) LatestCheckpoint(ctx context.Context, name string) (*CheckpointRow, error) {
	var row CheckpointRow
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Order("updated_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storeError("load checkpoint", err)
	}
	return &row, nil
}

// storeError maps a database failure onto the error taxonomy: transient
// connection-level failures become StoreUnavailable and retryable,
// everything else RecordWriteFailure.
func (s *Store) storeError(op string, err error) error {
	if isRetryableError(err) {
		return types.NewError(types.ErrStoreUnavailable, op+" failed").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrRecordWriteFailure, op+" failed").WithCause(err)
}

var _ recorder.EventWriter = (*Store)(nil)
