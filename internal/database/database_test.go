package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"facefeed/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openMemory(t)

	cfg := &config.Config{
		DBMaxOpenConns:   10,
		DBMaxIdleConns:   5,
		DBConnMaxMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestWithAuthToken(t *testing.T) {
	tests := []struct {
		name  string
		dsn   string
		token string
		want  string
	}{
		{"no token", "postgres://app@db/feed", "", "postgres://app@db/feed"},
		{"url without password", "postgres://app@db:5432/feed?sslmode=require", "tok", "postgres://app:tok@db:5432/feed?sslmode=require"},
		{"url with password kept", "postgres://app:pw@db/feed", "tok", "postgres://app:pw@db/feed"},
		{"keyword dsn", "host=db user=app dbname=feed", "tok", "host=db user=app dbname=feed password=tok"},
		{"keyword dsn with password kept", "host=db password=pw", "tok", "host=db password=pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withAuthToken(tt.dsn, tt.token))
		})
	}
}

func TestRunMigrations_CreatesSchemaAndIsIdempotent(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	require.NotEmpty(t, GetMigrations())
	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))

	for _, table := range []string{"users", "posts", "comments", "likes", "user_sessions", "user_activity_log",
		"user_permissions", "user_settings", "post_views", "post_shares", "migration_logs"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}

	pending, err := PendingMigrations(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunMigrations_RejectsUnknownAppliedVersion(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, db.Create(&MigrationLog{Version: 999, Name: "from_the_future"}).Error)

	err := RunMigrations(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000999")
}

func TestRollbackMigration(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db, 1))
	assert.False(t, db.Migrator().HasTable("posts"))

	err := RollbackMigration(ctx, db, 1)
	assert.Error(t, err)
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("SELECT 2;")},
		"m/000002_second.down.sql": {Data: []byte("SELECT -2;")},
		"m/000001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"m/000001_first.down.sql":  {Data: []byte("SELECT -1;")},
		"m/README.md":              {Data: []byte("ignored")},
	}
	got, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "000002_second", got[1].String())

	fsys["m/000003_broken.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}
	_, err = LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestTxManager(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))
	tm := NewTxManager(db, nil)

	insert := func(ctx context.Context, key string) error {
		return tm.Conn(ctx).Exec(
			"INSERT INTO user_settings (user_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
			"u1", key, "v").Error
	}
	count := func() int64 {
		var n int64
		require.NoError(t, db.Table("user_settings").Count(&n).Error)
		return n
	}

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := tm.WithinTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, insert(ctx, "a"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), count())
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		err := tm.WithinTransaction(ctx, func(ctx context.Context) error {
			outer, _ := tm.GetTx(ctx)
			return tm.WithinTransaction(ctx, func(inner context.Context) error {
				tx, ok := tm.GetTx(inner)
				assert.True(t, ok)
				assert.Same(t, outer, tx)
				return insert(inner, "b")
			})
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count())
	})

	t.Run("after commit hooks wait for the outer commit", func(t *testing.T) {
		var ran []string
		err := tm.WithinTransaction(ctx, func(ctx context.Context) error {
			tm.AfterCommit(ctx, func(context.Context) { ran = append(ran, "outer") })
			return tm.WithinTransaction(ctx, func(inner context.Context) error {
				tm.AfterCommit(inner, func(ctx context.Context) {
					_, inTx := tm.GetTx(ctx)
					assert.False(t, inTx, "hooks run outside the transaction")
					ran = append(ran, "inner")
				})
				assert.Empty(t, ran)
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"outer", "inner"}, ran)
	})

	t.Run("after commit hooks are dropped on rollback", func(t *testing.T) {
		ran := false
		err := tm.WithinTransaction(ctx, func(ctx context.Context) error {
			tm.AfterCommit(ctx, func(context.Context) { ran = true })
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("after commit without a transaction runs now", func(t *testing.T) {
		ran := false
		tm.AfterCommit(ctx, func(context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("read conn falls back to primary", func(t *testing.T) {
		var n int64
		require.NoError(t, tm.ReadConn(ctx).Table("user_settings").Count(&n).Error)
		assert.Equal(t, int64(1), n)
	})
}
