package repository

import (
	"context"
	"time"

	"facefeed/internal/cache"
	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"

	"gorm.io/gorm"
)

// PostFilter selects a page of posts. Unless ViewerID is the author, only
// public, published, non-rejected posts match.
type PostFilter struct {
	AuthorID string
	ViewerID string
	Limit    int
	Offset   int
	Now      time.Time
}

// PostStatsDelta holds signed counter adjustments.
type PostStatsDelta struct {
	Likes    int64
	Comments int64
	Shares   int64
	Views    int64
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Post, error)
	Create(ctx context.Context, post *domain.Post) error
	Update(ctx context.Context, post *domain.Post) error
	Delete(ctx context.Context, id string) error
	FindByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*domain.Post, error)
	FindWithPagination(ctx context.Context, filter PostFilter) (Page[*domain.Post], error)
	Search(ctx context.Context, query string, limit, offset int) (Page[*domain.Post], error)
	CountByAuthor(ctx context.Context, authorIDs ...string) (map[string]int64, error)
	CountMediaReferences(ctx context.Context, mediaURL, excludeID string) (int64, error)
	AdjustStats(ctx context.Context, id string, delta PostStatsDelta) error
}

type postRepository struct {
	tx    *database.TxManager
	cache *cache.Cache
}

// NewPostRepository returns a PostRepository. cache may be nil.
func NewPostRepository(tx *database.TxManager, c *cache.Cache) PostRepository {
	return &postRepository{tx: tx, cache: c}
}

func (r *postRepository) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	var row models.Post
	fetch := func() error {
		return wrapError(ctx, "find post", "Post", id, r.tx.ReadConn(ctx).Where("id = ?", id).Take(&row).Error)
	}

	var err error
	if _, inTx := r.tx.GetTx(ctx); inTx {
		err = fetch()
	} else {
		err = r.cache.Aside(ctx, cache.PostKey(id), &row, cache.PostTTL, fetch)
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(ctx, &row)
}

func (r *postRepository) Create(ctx context.Context, post *domain.Post) error {
	row, err := postToRow(post)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := r.tx.Conn(ctx).Create(row).Error; err != nil {
		return wrapError(ctx, "create post", "Post", post.ID(), err)
	}
	r.tx.AfterCommit(ctx, r.cache.BumpFeedVersion)
	return nil
}

// Update persists content, privacy, metadata and schedule. Counters are only
// changed through AdjustStats.
func (r *postRepository) Update(ctx context.Context, post *domain.Post) error {
	row, err := postToRow(post)
	if err != nil {
		return models.NewInternalError(err)
	}
	res := r.tx.Conn(ctx).Model(&models.Post{}).Where("id = ?", row.ID).Updates(map[string]any{
		"content":           row.Content,
		"type":              row.Type,
		"privacy":           row.Privacy,
		"moderation_status": row.Moderation,
		"metadata":          row.Metadata,
		"search_text":       row.SearchText,
		"updated_at":        row.UpdatedAt,
		"published_at":      row.PublishedAt,
		"scheduled_at":      row.ScheduledAt,
	})
	if res.Error != nil {
		return wrapError(ctx, "update post", "Post", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", row.ID)
	}
	r.invalidate(ctx, row.ID)
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	res := r.tx.Conn(ctx).Where("id = ?", id).Delete(&models.Post{})
	if res.Error != nil {
		return wrapError(ctx, "delete post", "Post", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *postRepository) FindByAuthor(ctx context.Context, authorID string, limit, offset int) ([]*domain.Post, error) {
	limit, offset = NormalizePage(limit, offset)
	var rows []models.Post
	err := r.tx.ReadConn(ctx).
		Where("author_id = ?", authorID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapError(ctx, "find posts by author", "Post", authorID, err)
	}
	return r.toDomainList(ctx, rows)
}

// FindWithPagination returns the feed page described by filter. Public
// pages (every viewer but the author) are cached under the current feed version.
func (r *postRepository) FindWithPagination(ctx context.Context, filter PostFilter) (Page[*domain.Post], error) {
	filter.Limit, filter.Offset = NormalizePage(filter.Limit, filter.Offset)
	if filter.Now.IsZero() {
		filter.Now = time.Now().UTC()
	}
	ownView := filter.AuthorID != "" && filter.AuthorID == filter.ViewerID

	var page Page[models.Post]
	fetch := func() error {
		q := r.tx.ReadConn(ctx).Model(&models.Post{})
		if filter.AuthorID != "" {
			q = q.Where("author_id = ?", filter.AuthorID)
		}
		if !ownView {
			q = q.Where("privacy = ?", string(domain.PrivacyPublic)).
				Where("moderation_status <> ?", string(domain.ModerationRejected)).
				Where("published_at IS NOT NULL AND published_at <= ?", filter.Now)
		}
		q = q.Session(&gorm.Session{})
		if err := q.Count(&page.Total).Error; err != nil {
			return wrapError(ctx, "count posts", "Post", filter.AuthorID, err)
		}
		err := q.Order("published_at DESC").Order("created_at DESC").Order("id DESC").
			Limit(filter.Limit).Offset(filter.Offset).
			Find(&page.Items).Error
		return wrapError(ctx, "list posts", "Post", filter.AuthorID, err)
	}

	var err error
	if _, inTx := r.tx.GetTx(ctx); inTx || ownView {
		err = fetch()
	} else {
		key := cache.FeedKey(r.cache.FeedVersion(ctx), filter.AuthorID, filter.Limit, filter.Offset)
		err = r.cache.Aside(ctx, key, &page, cache.FeedTTL, fetch)
	}
	if err != nil {
		return Page[*domain.Post]{}, err
	}

	items, err := r.toDomainList(ctx, page.Items)
	if err != nil {
		return Page[*domain.Post]{}, err
	}
	return Page[*domain.Post]{Items: items, Total: page.Total}, nil
}

// Search matches query as a case-insensitive substring of public, published post text.
func (r *postRepository) Search(ctx context.Context, query string, limit, offset int) (Page[*domain.Post], error) {
	limit, offset = NormalizePage(limit, offset)
	q := r.tx.ReadConn(ctx).Model(&models.Post{}).
		Where(`search_text LIKE ? ESCAPE '\'`, containsPattern(query)).
		Where("privacy = ?", string(domain.PrivacyPublic)).
		Where("moderation_status <> ?", string(domain.ModerationRejected)).
		Where("published_at IS NOT NULL AND published_at <= ?", time.Now().UTC()).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[*domain.Post]{}, wrapError(ctx, "count post search", "Post", query, err)
	}
	var rows []models.Post
	if err := q.Order("published_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page[*domain.Post]{}, wrapError(ctx, "search posts", "Post", query, err)
	}
	items, err := r.toDomainList(ctx, rows)
	if err != nil {
		return Page[*domain.Post]{}, err
	}
	return Page[*domain.Post]{Items: items, Total: total}, nil
}

// CountByAuthor returns post counts grouped by author, optionally restricted to authorIDs.
func (r *postRepository) CountByAuthor(ctx context.Context, authorIDs ...string) (map[string]int64, error) {
	q := r.tx.ReadConn(ctx).Model(&models.Post{}).Select("author_id AS group_key, COUNT(*) AS group_count")
	if len(authorIDs) > 0 {
		q = q.Where("author_id IN ?", authorIDs)
	}
	var rows []groupCount
	if err := q.Group("author_id").Scan(&rows).Error; err != nil {
		return nil, wrapError(ctx, "count posts by author", "Post", authorIDs, err)
	}
	return countsToMap(rows), nil
}

// CountMediaReferences counts posts other than excludeID whose image list or
// video link holds mediaURL.
func (r *postRepository) CountMediaReferences(ctx context.Context, mediaURL, excludeID string) (int64, error) {
	token, err := encodeJSON(mediaURL)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	var n int64
	err = r.tx.ReadConn(ctx).Model(&models.Post{}).
		Where(`content LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(token)+"%").
		Where("id <> ?", excludeID).
		Count(&n).Error
	if err != nil {
		return 0, wrapError(ctx, "count media references", "Post", mediaURL, err)
	}
	return n, nil
}

func (r *postRepository) AdjustStats(ctx context.Context, id string, delta PostStatsDelta) error {
	err := adjustCounters(ctx, r.tx.Conn(ctx), &models.Post{}, "Post", id, map[string]int64{
		"likes_count":    delta.Likes,
		"comments_count": delta.Comments,
		"shares_count":   delta.Shares,
		"views_count":    delta.Views,
	})
	if err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// invalidate drops the cached post and feed pages once the write is committed.
func (r *postRepository) invalidate(ctx context.Context, id string) {
	r.tx.AfterCommit(ctx, func(ctx context.Context) {
		r.cache.InvalidatePost(ctx, id)
		r.cache.BumpFeedVersion(ctx)
	})
}

func (r *postRepository) toDomain(ctx context.Context, row *models.Post) (*domain.Post, error) {
	p, err := rowToPost(row)
	if err != nil {
		return nil, wrapError(ctx, "decode post", "Post", row.ID, err)
	}
	return p, nil
}

func (r *postRepository) toDomainList(ctx context.Context, rows []models.Post) ([]*domain.Post, error) {
	out, err := rowsToPosts(rows)
	if err != nil {
		return nil, wrapError(ctx, "decode posts", "Post", "", err)
	}
	return out, nil
}
