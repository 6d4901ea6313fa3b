package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"facefeed/internal/cache"
	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

var baseTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newPost(id, author string, text string, at time.Time) *domain.Post {
	published := at
	return domain.NewPost(domain.PostParams{
		ID:          id,
		AuthorID:    author,
		Content:     domain.BuildPostContent(text, "", nil, nil, nil),
		CreatedAt:   at,
		UpdatedAt:   at,
		PublishedAt: &published,
	})
}

func TestPostRepository_RoundTrip(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	edited := baseTime.Add(time.Minute)
	original := domain.NewPost(domain.PostParams{
		ID:       "p1",
		AuthorID: "u1",
		Content: domain.BuildPostContent("hello #world @bob https://example.com",
			"https://youtu.be/abc", []string{"https://cdn.example.com/a.jpg"}, []string{"extra"}, nil),
		Privacy: domain.PrivacyFriends,
		Metadata: domain.PostMetadata{
			IsEdited:         true,
			EditHistory:      []domain.Edit{{PreviousText: "draft", EditedAt: edited}},
			IsSponsored:      true,
			ModerationStatus: domain.ModerationFlagged,
		},
		CreatedAt:   baseTime,
		UpdatedAt:   edited,
		PublishedAt: &baseTime,
	})
	require.NoError(t, repo.Create(ctx, original))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, original.Content(), got.Content())
	assert.Equal(t, original.Metadata(), got.Metadata())
	assert.Equal(t, domain.PostTypeMixed, got.Type())
	assert.Equal(t, domain.PrivacyFriends, got.Privacy())
	assert.WithinDuration(t, baseTime, got.CreatedAt(), time.Millisecond)
	assert.WithinDuration(t, edited, got.UpdatedAt(), time.Millisecond)
	require.NotNil(t, got.PublishedAt())
	assert.WithinDuration(t, baseTime, *got.PublishedAt(), time.Millisecond)
}

func TestPostRepository_NotFound(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "missing")
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	err = repo.Update(ctx, newPost("missing", "u1", "x", baseTime))
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	err = repo.Delete(ctx, "missing")
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	err = repo.AdjustStats(ctx, "missing", PostStatsDelta{Likes: 1})
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestPostRepository_DuplicateIsConflict(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "x", baseTime)))
	err := repo.Create(ctx, newPost("p1", "u1", "y", baseTime))
	assert.True(t, models.HasCode(err, models.CodeConflict))
}

func TestPostRepository_UpdateKeepsCounters(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	p := newPost("p1", "u1", "first", baseTime)
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Likes: 3, Views: 10}))

	require.NoError(t, repo.Update(ctx, p.UpdateContent(domain.BuildPostContent("second #go", "", nil, nil, nil))))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content().Text[:6])
	assert.Equal(t, []string{"go"}, got.Content().Hashtags)
	assert.True(t, got.Metadata().IsEdited)
	assert.Equal(t, int64(3), got.Stats().Likes)
	assert.Equal(t, int64(10), got.Stats().Views)
}

func TestPostRepository_AdjustStatsFloorsAtZero(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "x", baseTime)))
	require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Likes: 1, Comments: 2}))
	require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Likes: -5, Comments: -1}))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stats().Likes)
	assert.Equal(t, int64(1), got.Stats().Comments)
}

func TestPostRepository_FindWithPagination(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, repo.Create(ctx, newPost(id, "u1", "post "+id, baseTime.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newPost("p4", "u2", "other", baseTime.Add(5*time.Minute))))

	private := newPost("p5", "u1", "secret", baseTime).WithPrivacy(domain.PrivacyPrivate)
	require.NoError(t, repo.Create(ctx, private))

	future := baseTime.Add(24 * time.Hour)
	scheduled := domain.NewPost(domain.PostParams{ID: "p6", AuthorID: "u1", Content: domain.PostContent{Text: "later"}, PublishedAt: &future, ScheduledAt: &future})
	require.NoError(t, repo.Create(ctx, scheduled))

	rejected := newPost("p7", "u1", "bad", baseTime).WithModerationStatus(domain.ModerationRejected)
	require.NoError(t, repo.Create(ctx, rejected))

	now := baseTime.Add(time.Hour)

	t.Run("public feed newest first", func(t *testing.T) {
		page, err := repo.FindWithPagination(ctx, PostFilter{Limit: 2, Now: now})
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "p4", page.Items[0].ID())
		assert.Equal(t, "p3", page.Items[1].ID())
	})

	t.Run("author filter", func(t *testing.T) {
		page, err := repo.FindWithPagination(ctx, PostFilter{AuthorID: "u1", ViewerID: "u2", Offset: 1, Now: now})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "p2", page.Items[0].ID())
	})

	t.Run("author sees own private and scheduled posts", func(t *testing.T) {
		page, err := repo.FindWithPagination(ctx, PostFilter{AuthorID: "u1", ViewerID: "u1", Now: now})
		require.NoError(t, err)
		assert.Equal(t, int64(6), page.Total)
	})

	t.Run("counts and author listing", func(t *testing.T) {
		counts, err := repo.CountByAuthor(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"u1": 6, "u2": 1}, counts)

		counts, err = repo.CountByAuthor(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"u2": 1}, counts)

		posts, err := repo.FindByAuthor(ctx, "u2", 10, 0)
		require.NoError(t, err)
		require.Len(t, posts, 1)
	})
}

func TestPostRepository_Search(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "Learning Go today", baseTime)))
	require.NoError(t, repo.Create(ctx, newPost("p2", "u1", "100% coverage", baseTime)))
	require.NoError(t, repo.Create(ctx, newPost("p3", "u1", "nothing here", baseTime)))

	page, err := repo.Search(ctx, "GO", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "p1", page.Items[0].ID())

	page, err = repo.Search(ctx, "100%", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = repo.Search(ctx, "%", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "wildcards are matched literally")
}

func TestPostRepository_CountMediaReferences(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()

	const img = "https://cdn.example.com/u1/a_1.jpg"
	withMedia := func(id, video string, images ...string) *domain.Post {
		return domain.NewPost(domain.PostParams{
			ID:        id,
			AuthorID:  "u1",
			Content:   domain.BuildPostContent("", video, images, nil, nil),
			CreatedAt: baseTime,
			UpdatedAt: baseTime,
		})
	}
	require.NoError(t, repo.Create(ctx, withMedia("p1", "", img)))
	require.NoError(t, repo.Create(ctx, withMedia("p2", "", "https://cdn.example.com/u2/b.jpg", img)))
	require.NoError(t, repo.Create(ctx, withMedia("p3", img)))
	require.NoError(t, repo.Create(ctx, withMedia("p4", "", img+".webp", "https://cdn.example.com/u1/aX1.jpg")))

	n, err := repo.CountMediaReferences(ctx, img, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountMediaReferences(ctx, "https://cdn.example.com/u2/b.jpg", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountMediaReferences(ctx, "https://cdn.example.com/u2/b.jpg", "p2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostRepository_CacheAside(t *testing.T) {
	tm, db := testutil.NewTxManager(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewPostRepository(tm, cache.New(client))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "cached", baseTime)))
	_, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.PostKey("p1")))

	// A write behind the repository's back is hidden by the cache until invalidated.
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", "p1").Update("privacy", "private").Error)
	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PrivacyPublic, got.Privacy())

	require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Views: 1}))
	assert.False(t, mr.Exists(cache.PostKey("p1")))
	got, err = repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PrivacyPrivate, got.Privacy())
	assert.Equal(t, int64(1), got.Stats().Views)
}

func TestPostRepository_InvalidatesAfterCommit(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewPostRepository(tm, cache.New(client))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "counted", baseTime)))
	_, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.PostKey("p1")))

	err = tm.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := repo.AdjustStats(ctx, "p1", PostStatsDelta{Likes: 1}); err != nil {
			return err
		}
		// Readers outside the transaction still see the committed row, so
		// the cached copy must survive until commit.
		assert.True(t, mr.Exists(cache.PostKey("p1")))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PostKey("p1")))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Stats().Likes)
}

func TestPostRepository_RollbackKeepsCache(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewPostRepository(tm, cache.New(client))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "counted", baseTime)))
	_, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	version, err := client.Get(ctx, "feed:version").Int64()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tm.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Likes: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, mr.Exists(cache.PostKey("p1")))
	after, err := client.Get(ctx, "feed:version").Int64()
	require.NoError(t, err)
	assert.Equal(t, version, after)
}

func TestPostRepository_TransactionRollback(t *testing.T) {
	tm, _ := testutil.NewTxManager(t)
	repo := NewPostRepository(tm, nil)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPost("p1", "u1", "x", baseTime)))

	boom := errors.New("boom")
	err := tm.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.AdjustStats(ctx, "p1", PostStatsDelta{Comments: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stats().Comments)
}

func TestPostRepository_DriverErrorIsWrapped(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(database.NewTxManager(db, nil), nil)

	driverErr := errors.New("connection reset by peer")
	mock.ExpectQuery(`SELECT \* FROM "posts" WHERE id = \$1`).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnError(driverErr)

	_, err := repo.FindByID(context.Background(), "p1")
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeInternal, appErr.Code)
	assert.ErrorIs(t, err, driverErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
