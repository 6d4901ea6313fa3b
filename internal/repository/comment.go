package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"

	"gorm.io/gorm"
)

// CommentFilter selects a page of comments under one post. By default both
// active and deleted comments are listed so threads keep their shape.
type CommentFilter struct {
	PostID        string
	ParentID      string
	TopLevelOnly  bool
	IncludeHidden bool
	Limit         int
	Offset        int
}

type CommentStatsDelta struct {
	Likes   int64
	Replies int64
	Reports int64
}

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Comment, error)
	Create(ctx context.Context, comment *domain.Comment) error
	Update(ctx context.Context, comment *domain.Comment) error
	Delete(ctx context.Context, id string) error
	FindByPost(ctx context.Context, postID string, limit, offset int) ([]*domain.Comment, error)
	FindReplies(ctx context.Context, parentID string, limit, offset int) ([]*domain.Comment, error)
	FindWithPagination(ctx context.Context, filter CommentFilter) (Page[*domain.Comment], error)
	Search(ctx context.Context, query string, limit, offset int) (Page[*domain.Comment], error)
	CountByPost(ctx context.Context, postIDs ...string) (map[string]int64, error)
	AdjustStats(ctx context.Context, id string, delta CommentStatsDelta) error
	MarkDeletedByPost(ctx context.Context, postID string) (int64, error)
}

type commentRepository struct {
	tx *database.TxManager
}

func NewCommentRepository(tx *database.TxManager) CommentRepository {
	return &commentRepository{tx: tx}
}

func (r *commentRepository) FindByID(ctx context.Context, id string) (*domain.Comment, error) {
	var row models.Comment
	if err := r.tx.ReadConn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, wrapError(ctx, "find comment", "Comment", id, err)
	}
	c, err := rowToComment(&row)
	if err != nil {
		return nil, wrapError(ctx, "decode comment", "Comment", id, err)
	}
	return c, nil
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	row, err := commentToRow(comment)
	if err != nil {
		return models.NewInternalError(err)
	}
	return wrapError(ctx, "create comment", "Comment", row.ID, r.tx.Conn(ctx).Create(row).Error)
}

// Update persists content, status and metadata. Counters only change through AdjustStats.
func (r *commentRepository) Update(ctx context.Context, comment *domain.Comment) error {
	row, err := commentToRow(comment)
	if err != nil {
		return models.NewInternalError(err)
	}
	res := r.tx.Conn(ctx).Model(&models.Comment{}).Where("id = ?", row.ID).Updates(map[string]any{
		"content":     row.Content,
		"status":      row.Status,
		"metadata":    row.Metadata,
		"search_text": row.SearchText,
		"updated_at":  row.UpdatedAt,
	})
	if res.Error != nil {
		return wrapError(ctx, "update comment", "Comment", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", row.ID)
	}
	return nil
}

// Delete removes the row. Use-cases soft delete through Update instead; this
// path exists for administrative clean-up.
func (r *commentRepository) Delete(ctx context.Context, id string) error {
	res := r.tx.Conn(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return wrapError(ctx, "delete comment", "Comment", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", id)
	}
	return nil
}

func (r *commentRepository) FindByPost(ctx context.Context, postID string, limit, offset int) ([]*domain.Comment, error) {
	page, err := r.FindWithPagination(ctx, CommentFilter{PostID: postID, Limit: limit, Offset: offset})
	return page.Items, err
}

func (r *commentRepository) FindReplies(ctx context.Context, parentID string, limit, offset int) ([]*domain.Comment, error) {
	page, err := r.FindWithPagination(ctx, CommentFilter{ParentID: parentID, Limit: limit, Offset: offset})
	return page.Items, err
}

// FindWithPagination lists comments oldest first.
func (r *commentRepository) FindWithPagination(ctx context.Context, filter CommentFilter) (Page[*domain.Comment], error) {
	limit, offset := NormalizePage(filter.Limit, filter.Offset)

	q := r.tx.ReadConn(ctx).Model(&models.Comment{})
	if filter.PostID != "" {
		q = q.Where("post_id = ?", filter.PostID)
	}
	switch {
	case filter.ParentID != "":
		q = q.Where("parent_id = ?", filter.ParentID)
	case filter.TopLevelOnly:
		q = q.Where("parent_id IS NULL")
	}
	if !filter.IncludeHidden {
		q = q.Where("status IN ?", []string{string(domain.CommentActive), string(domain.CommentDeleted)})
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "count comments", "Comment", filter.PostID, err)
	}
	var rows []models.Comment
	if err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "list comments", "Comment", filter.PostID, err)
	}
	items, err := rowsToComments(rows)
	if err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "decode comments", "Comment", filter.PostID, err)
	}
	return Page[*domain.Comment]{Items: items, Total: total}, nil
}

// Search matches query as a case-insensitive substring of active comment text.
func (r *commentRepository) Search(ctx context.Context, query string, limit, offset int) (Page[*domain.Comment], error) {
	limit, offset = NormalizePage(limit, offset)
	q := r.tx.ReadConn(ctx).Model(&models.Comment{}).
		Where(`search_text LIKE ? ESCAPE '\'`, containsPattern(query)).
		Where("status = ?", string(domain.CommentActive)).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "count comment search", "Comment", query, err)
	}
	var rows []models.Comment
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "search comments", "Comment", query, err)
	}
	items, err := rowsToComments(rows)
	if err != nil {
		return Page[*domain.Comment]{}, wrapError(ctx, "decode comments", "Comment", query, err)
	}
	return Page[*domain.Comment]{Items: items, Total: total}, nil
}

// CountByPost returns active comment counts grouped by post.
func (r *commentRepository) CountByPost(ctx context.Context, postIDs ...string) (map[string]int64, error) {
	q := r.tx.ReadConn(ctx).Model(&models.Comment{}).
		Select("post_id AS group_key, COUNT(*) AS group_count").
		Where("status = ?", string(domain.CommentActive))
	if len(postIDs) > 0 {
		q = q.Where("post_id IN ?", postIDs)
	}
	var rows []groupCount
	if err := q.Group("post_id").Scan(&rows).Error; err != nil {
		return nil, wrapError(ctx, "count comments by post", "Comment", postIDs, err)
	}
	return countsToMap(rows), nil
}

func (r *commentRepository) AdjustStats(ctx context.Context, id string, delta CommentStatsDelta) error {
	return adjustCounters(ctx, r.tx.Conn(ctx), &models.Comment{}, "Comment", id, map[string]int64{
		"likes_count":   delta.Likes,
		"replies_count": delta.Replies,
		"reports_count": delta.Reports,
	})
}

// MarkDeletedByPost soft deletes every comment of a post and returns how many changed.
func (r *commentRepository) MarkDeletedByPost(ctx context.Context, postID string) (int64, error) {
	res := r.tx.Conn(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND status <> ?", postID, string(domain.CommentDeleted)).
		Updates(map[string]any{
			"status":     string(domain.CommentDeleted),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, wrapError(ctx, "delete comments by post", "Comment", postID, res.Error)
	}
	return res.RowsAffected, nil
}
