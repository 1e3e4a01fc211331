package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptovat/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.False(t, cfg.Enabled)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.DatabaseConfig{
		Enabled:             true,
		DSN:                 "postgres://localhost/vat",
		MaxOpenConns:        20,
		QueryTimeoutSeconds: 5,
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "postgres://localhost/vat", cfg.DSN)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
}

func TestNewManager_Disabled(t *testing.T) {
	manager, err := NewManager(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	assert.NoError(t, manager.Migrate(context.Background()))
	assert.NoError(t, manager.Close())

	check := manager.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Contains(t, check.Errors[0], "disabled")
}

func TestNewManager_MissingDSN(t *testing.T) {
	_, err := NewManager(context.Background(), Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	cfg := DefaultConfig()
	cfg.QueryTimeout = time.Second
	return NewManagerWithDB(sqlx.NewDb(mockDB, "sqlmock"), cfg), mock
}

func TestManager_MigrateAndHealth(t *testing.T) {
	manager, mock := newMockManager(t)
	require.True(t, manager.IsEnabled())
	require.NotNil(t, manager.Repository().Runs)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scan_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, manager.Migrate(context.Background()))

	mock.ExpectPing()
	check := manager.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Empty(t, check.Errors)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	check = manager.Health().Health(context.Background())
	assert.False(t, check.Healthy)
	require.Len(t, check.Errors, 1)
	assert.Contains(t, check.Errors[0], "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
