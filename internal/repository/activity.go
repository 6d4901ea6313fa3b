package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/models"

	"github.com/google/uuid"
)

// Activity actions written by the use-cases.
const (
	ActionPostCreated     = "post_created"
	ActionPostUpdated     = "post_updated"
	ActionPostDeleted     = "post_deleted"
	ActionPostShared      = "post_shared"
	ActionCommentCreated  = "comment_created"
	ActionCommentUpdated  = "comment_updated"
	ActionCommentDeleted  = "comment_deleted"
	ActionReactionSet     = "reaction_set"
	ActionReactionRemoved = "reaction_removed"
	ActionUserCreated     = "user_created"
	ActionUserUpdated     = "user_updated"
	ActionUserDeleted     = "user_deleted"
	ActionFaceEnrolled    = "face_enrolled"
	ActionFaceVerified    = "face_verified"
	ActionFaceDeleted     = "face_deleted"
)

// Activity is one entry of a user's audit trail.
type Activity struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type ActivityRepository interface {
	Record(ctx context.Context, a Activity) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, error)
}

type activityRepository struct {
	tx *database.TxManager
}

func NewActivityRepository(tx *database.TxManager) ActivityRepository {
	return &activityRepository{tx: tx}
}

func (r *activityRepository) Record(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var metadata string
	if len(a.Metadata) > 0 {
		encoded, err := encodeJSON(a.Metadata)
		if err != nil {
			return models.NewInternalError(err)
		}
		metadata = encoded
	}
	row := models.UserActivity{
		ID:         a.ID,
		UserID:     a.UserID,
		Action:     a.Action,
		TargetType: a.TargetType,
		TargetID:   a.TargetID,
		Metadata:   metadata,
		CreatedAt:  a.CreatedAt.UTC(),
	}
	return wrapError(ctx, "record activity", "Activity", a.ID, r.tx.Conn(ctx).Create(&row).Error)
}

func (r *activityRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Activity, error) {
	limit, offset = NormalizePage(limit, offset)
	var rows []models.UserActivity
	err := r.tx.ReadConn(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapError(ctx, "list activity", "Activity", userID, err)
	}
	out := make([]Activity, 0, len(rows))
	for _, row := range rows {
		a := Activity{
			ID:         row.ID,
			UserID:     row.UserID,
			Action:     row.Action,
			TargetType: row.TargetType,
			TargetID:   row.TargetID,
			CreatedAt:  row.CreatedAt.UTC(),
		}
		if err := decodeJSON(row.Metadata, &a.Metadata); err != nil {
			return nil, wrapError(ctx, "decode activity", "Activity", row.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}
