package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB wires a sqlmock connection behind a gorm postgres dialector so
// transaction plumbing can be asserted without a server.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	s, err := NewStore(gormDB, PoolConfig{MaxIdleConns: 5, MaxOpenConns: 10}, zap.NewNop())
	require.NoError(t, err)

	return mockDB, mock, s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = Open("", "dsn", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(DriverSQLite, "file:open_test?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.NoError(t, sqlDB.Ping())
}

func TestNewStore_NilDB(t *testing.T) {
	_, err := NewStore(nil, DefaultPoolConfig(), zap.NewNop())
	require.Error(t, err)
}

func TestStore_PingAfterClose(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectClose()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestStore_Stats(t *testing.T) {
	mockDB, _, s := setupMockDB(t)
	defer mockDB.Close()

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.Equal(t, 10, stats.MaxOpenConnections)
}

func TestStore_WithTransaction_Commit(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := s.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransaction_Rollback(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransaction_Closed(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectClose()
	require.NoError(t, s.Close())

	err := s.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestStore_WithTransactionRetry_RecoversFromDeadlock(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	// Two deadlocked attempts roll back, the third commits.
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := s.WithTransactionRetry(context.Background(), 5, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return errors.New("pq: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransactionRetry_NonRetryableFailsFast(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := s.WithTransactionRetry(context.Background(), 5, func(tx *gorm.DB) error {
		attempts++
		return errors.New("pq: syntax error at or near SELECT")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransactionRetry_Exhausted(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error {
		return errors.New("lock wait timeout exceeded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransactionRetry_ContextCancelled(t *testing.T) {
	mockDB, mock, s := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithTransactionRetry(ctx, 5, func(tx *gorm.DB) error {
		cancel() // cancel during the first attempt so the backoff wait aborts
		return errors.New("deadlock detected")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"pq: deadlock detected",
		"ERROR: could not serialize access (SQLSTATE 40001)",
		"serialization failure",
		"read tcp 10.0.0.1:5432: connection reset by peer",
		"dial tcp: connection refused",
		"write: broken pipe",
		"Error 1205: Lock wait timeout exceeded",
		"driver: bad connection",
		"database is locked",
	}
	for _, msg := range retryable {
		assert.True(t, isRetryableError(errors.New(msg)), msg)
	}

	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(errors.New("pq: syntax error")))
	assert.False(t, isRetryableError(errors.New("duplicate key value violates unique constraint")))
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxIdleTime)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
}
