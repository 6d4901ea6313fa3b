package repository

import (
	"context"

	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"

	"gorm.io/gorm"
)

// LikeRepository defines persistence operations for likes. The database
// enforces one like per (user, target, target type).
type LikeRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Like, error)
	Find(ctx context.Context, userID, targetID string, targetType domain.TargetType) (*domain.Like, error)
	Create(ctx context.Context, like *domain.Like) error
	Update(ctx context.Context, like *domain.Like) error
	Delete(ctx context.Context, id string) error
	FindByTarget(ctx context.Context, targetID string, targetType domain.TargetType, limit, offset int) (Page[*domain.Like], error)
	FindByUser(ctx context.Context, userID string, targetType domain.TargetType, targetIDs []string) (map[string]domain.Reaction, error)
	CountByReaction(ctx context.Context, targetID string, targetType domain.TargetType) (map[domain.Reaction]int64, error)
	DeleteByTarget(ctx context.Context, targetID string, targetType domain.TargetType) (int64, error)
}

type likeRepository struct {
	tx *database.TxManager
}

func NewLikeRepository(tx *database.TxManager) LikeRepository {
	return &likeRepository{tx: tx}
}

func (r *likeRepository) FindByID(ctx context.Context, id string) (*domain.Like, error) {
	var row models.Like
	if err := r.tx.ReadConn(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, wrapError(ctx, "find like", "Like", id, err)
	}
	return rowToLike(&row), nil
}

// Find returns the user's like on a target, or NOT_FOUND.
func (r *likeRepository) Find(ctx context.Context, userID, targetID string, targetType domain.TargetType) (*domain.Like, error) {
	var row models.Like
	err := r.tx.ReadConn(ctx).
		Where("user_id = ? AND target_id = ? AND target_type = ?", userID, targetID, string(targetType)).
		Take(&row).Error
	if err != nil {
		return nil, wrapError(ctx, "find like", "Like", targetID, err)
	}
	return rowToLike(&row), nil
}

func (r *likeRepository) Create(ctx context.Context, like *domain.Like) error {
	return wrapError(ctx, "create like", "Like", like.ID(), r.tx.Conn(ctx).Create(likeToRow(like)).Error)
}

// Update changes the reaction; identity fields never change.
func (r *likeRepository) Update(ctx context.Context, like *domain.Like) error {
	res := r.tx.Conn(ctx).Model(&models.Like{}).Where("id = ?", like.ID()).
		Update("reaction", string(like.Reaction()))
	if res.Error != nil {
		return wrapError(ctx, "update like", "Like", like.ID(), res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Like", like.ID())
	}
	return nil
}

func (r *likeRepository) Delete(ctx context.Context, id string) error {
	res := r.tx.Conn(ctx).Where("id = ?", id).Delete(&models.Like{})
	if res.Error != nil {
		return wrapError(ctx, "delete like", "Like", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Like", id)
	}
	return nil
}

func (r *likeRepository) FindByTarget(ctx context.Context, targetID string, targetType domain.TargetType, limit, offset int) (Page[*domain.Like], error) {
	limit, offset = NormalizePage(limit, offset)
	q := r.tx.ReadConn(ctx).Model(&models.Like{}).
		Where("target_id = ? AND target_type = ?", targetID, string(targetType)).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[*domain.Like]{}, wrapError(ctx, "count likes", "Like", targetID, err)
	}
	var rows []models.Like
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page[*domain.Like]{}, wrapError(ctx, "list likes", "Like", targetID, err)
	}
	items := make([]*domain.Like, 0, len(rows))
	for i := range rows {
		items = append(items, rowToLike(&rows[i]))
	}
	return Page[*domain.Like]{Items: items, Total: total}, nil
}

// FindByUser returns the user's reaction for each of targetIDs that they reacted to.
func (r *likeRepository) FindByUser(ctx context.Context, userID string, targetType domain.TargetType, targetIDs []string) (map[string]domain.Reaction, error) {
	out := make(map[string]domain.Reaction)
	if userID == "" || len(targetIDs) == 0 {
		return out, nil
	}
	var rows []models.Like
	err := r.tx.ReadConn(ctx).
		Where("user_id = ? AND target_type = ? AND target_id IN ?", userID, string(targetType), targetIDs).
		Find(&rows).Error
	if err != nil {
		return nil, wrapError(ctx, "find likes by user", "Like", userID, err)
	}
	for _, row := range rows {
		out[row.TargetID] = domain.Reaction(row.Reaction)
	}
	return out, nil
}

// CountByReaction returns the reaction breakdown of one target.
func (r *likeRepository) CountByReaction(ctx context.Context, targetID string, targetType domain.TargetType) (map[domain.Reaction]int64, error) {
	var rows []groupCount
	err := r.tx.ReadConn(ctx).Model(&models.Like{}).
		Select("reaction AS group_key, COUNT(*) AS group_count").
		Where("target_id = ? AND target_type = ?", targetID, string(targetType)).
		Group("reaction").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapError(ctx, "count likes by reaction", "Like", targetID, err)
	}
	out := make(map[domain.Reaction]int64, len(rows))
	for _, row := range rows {
		out[domain.Reaction(row.Key)] = row.Count
	}
	return out, nil
}

func (r *likeRepository) DeleteByTarget(ctx context.Context, targetID string, targetType domain.TargetType) (int64, error) {
	res := r.tx.Conn(ctx).Where("target_id = ? AND target_type = ?", targetID, string(targetType)).Delete(&models.Like{})
	if res.Error != nil {
		return 0, wrapError(ctx, "delete likes by target", "Like", targetID, res.Error)
	}
	return res.RowsAffected, nil
}
