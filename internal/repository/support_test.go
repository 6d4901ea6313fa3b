package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name              string
		limit, offset     int
		wantLim, wantOffs int
	}{
		{"defaults", 0, 0, DefaultLimit, 0},
		{"negative", -5, -3, DefaultLimit, 0},
		{"clamped", 500, 10, MaxLimit, 10},
		{"kept", 7, 14, 7, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, o := NormalizePage(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLim, l)
			assert.Equal(t, tt.wantOffs, o)
		})
	}
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%hello%", containsPattern("  Hello "))
	assert.Equal(t, `%50\%\_off\\%`, containsPattern(`50%_OFF\`))
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"gorm translated", gorm.ErrDuplicatedKey, true},
		{"postgres wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: users.email"), true},
		{"unrelated", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestSessionRepository_Touch(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewSessionRepository(tm)
	ctx := context.Background()

	first := baseTime
	require.NoError(t, repo.Touch(ctx, Session{ID: "s1", UserID: "u1", UserAgent: "curl", LastSeenAt: first}))
	require.NoError(t, repo.Touch(ctx, Session{ID: "s1", UserID: "u1", UserAgent: "firefox", LastSeenAt: first.Add(time.Hour)}))
	require.NoError(t, repo.Touch(ctx, Session{ID: "s2", UserID: "u1", LastSeenAt: first.Add(time.Minute)}))

	sessions, err := repo.FindByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "firefox", sessions[0].UserAgent)
	assert.WithinDuration(t, first.Add(time.Hour), sessions[0].LastSeenAt, time.Millisecond)

	require.NoError(t, repo.Delete(ctx, "s2"))
	assert.True(t, models.HasCode(repo.Delete(ctx, "s2"), models.CodeNotFound))
}

func TestActivityRepository(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewActivityRepository(tm)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, Activity{UserID: "u1", Action: ActionPostCreated, TargetType: "post", TargetID: "p1", CreatedAt: baseTime}))
	require.NoError(t, repo.Record(ctx, Activity{
		UserID: "u1", Action: ActionReactionSet, TargetType: "post", TargetID: "p1",
		Metadata:  map[string]any{"reaction": "love"},
		CreatedAt: baseTime.Add(time.Minute),
	}))
	require.NoError(t, repo.Record(ctx, Activity{UserID: "u2", Action: ActionUserCreated}))

	entries, err := repo.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionReactionSet, entries[0].Action)
	assert.Equal(t, "love", entries[0].Metadata["reaction"])
	assert.NotEmpty(t, entries[0].ID)
	assert.Nil(t, entries[1].Metadata)
}

func TestPermissionRepository(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPermissionRepository(tm)
	ctx := context.Background()

	require.NoError(t, repo.Grant(ctx, "u1", domain.PermAnalyticsView, "admin"))
	require.NoError(t, repo.Grant(ctx, "u1", domain.PermAnalyticsView, "admin"))
	require.NoError(t, repo.Grant(ctx, "u1", domain.PermContentMonetize, "admin"))

	perms, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermAnalyticsView, domain.PermContentMonetize}, perms)

	require.NoError(t, repo.Revoke(ctx, "u1", domain.PermAnalyticsView))
	perms, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Permission{domain.PermContentMonetize}, perms)
}

func TestSettingsRepository(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewSettingsRepository(tm)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "u1", map[string]string{"theme": "dark", "language": "en"}))
	require.NoError(t, repo.Put(ctx, "u1", map[string]string{"theme": "light"}))
	require.NoError(t, repo.Put(ctx, "u1", nil))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "light", "language": "en"}, got)

	empty, err := repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEngagementRepository(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewEngagementRepository(tm)
	ctx := context.Background()

	isNew, err := repo.RecordView(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.True(t, isNew)
	isNew, err = repo.RecordView(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.False(t, isNew)

	id, err := repo.RecordShare(ctx, "p1", "u1", "look")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = repo.RecordShare(ctx, "p1", "u2", "")
	require.NoError(t, err)

	n, err := repo.CountShares(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, repo.DeleteByPost(ctx, "p1"))
	n, err = repo.CountShares(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	isNew, err = repo.RecordView(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.True(t, isNew)
}
