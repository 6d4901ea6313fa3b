package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// EngagementRepository records post views and shares.
type EngagementRepository interface {
	// RecordView stores a (post, viewer) pair and reports whether it was new.
	RecordView(ctx context.Context, postID, userID string) (bool, error)
	RecordShare(ctx context.Context, postID, userID, comment string) (string, error)
	CountShares(ctx context.Context, postID string) (int64, error)
	DeleteByPost(ctx context.Context, postID string) error
}

type engagementRepository struct {
	tx *database.TxManager
}

func NewEngagementRepository(tx *database.TxManager) EngagementRepository {
	return &engagementRepository{tx: tx}
}

func (r *engagementRepository) RecordView(ctx context.Context, postID, userID string) (bool, error) {
	row := models.PostView{PostID: postID, UserID: userID, CreatedAt: time.Now().UTC()}
	res := r.tx.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, wrapError(ctx, "record view", "PostView", postID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *engagementRepository) RecordShare(ctx context.Context, postID, userID, comment string) (string, error) {
	row := models.PostShare{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.tx.Conn(ctx).Create(&row).Error; err != nil {
		return "", wrapError(ctx, "record share", "PostShare", postID, err)
	}
	return row.ID, nil
}

func (r *engagementRepository) CountShares(ctx context.Context, postID string) (int64, error) {
	var n int64
	if err := r.tx.ReadConn(ctx).Model(&models.PostShare{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return 0, wrapError(ctx, "count shares", "PostShare", postID, err)
	}
	return n, nil
}

// DeleteByPost removes the view and share records of a deleted post.
func (r *engagementRepository) DeleteByPost(ctx context.Context, postID string) error {
	db := r.tx.Conn(ctx)
	if err := db.Where("post_id = ?", postID).Delete(&models.PostView{}).Error; err != nil {
		return wrapError(ctx, "delete views", "PostView", postID, err)
	}
	if err := db.Where("post_id = ?", postID).Delete(&models.PostShare{}).Error; err != nil {
		return wrapError(ctx, "delete shares", "PostShare", postID, err)
	}
	return nil
}
