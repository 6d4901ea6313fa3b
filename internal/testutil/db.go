// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"facefeed/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB returns a migrated in-memory SQLite database. The pool is held
// to one connection so every statement sees the same in-memory schema.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(context.Background(), db))
	return db
}

// NewTxManager returns a TxManager over a fresh in-memory database.
func NewTxManager(t *testing.T) (*database.TxManager, *gorm.DB) {
	t.Helper()
	db := NewSQLiteDB(t)
	return database.NewTxManager(db, nil), db
}
