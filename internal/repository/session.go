package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/models"

	"gorm.io/gorm/clause"
)

// Session is one identity-provider session seen by the API.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type SessionRepository interface {
	Touch(ctx context.Context, s Session) error
	FindByUser(ctx context.Context, userID string) ([]Session, error)
	Delete(ctx context.Context, id string) error
}

type sessionRepository struct {
	tx *database.TxManager
}

func NewSessionRepository(tx *database.TxManager) SessionRepository {
	return &sessionRepository{tx: tx}
}

// Touch inserts the session or refreshes its last-seen time and client details.
func (r *sessionRepository) Touch(ctx context.Context, s Session) error {
	now := time.Now().UTC()
	if s.LastSeenAt.IsZero() {
		s.LastSeenAt = now
	}
	row := models.UserSession{
		ID:         s.ID,
		UserID:     s.UserID,
		UserAgent:  truncate(s.UserAgent, 512),
		IPAddress:  truncate(s.IPAddress, 64),
		CreatedAt:  now,
		LastSeenAt: s.LastSeenAt.UTC(),
	}
	err := r.tx.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "user_agent", "ip_address"}),
	}).Create(&row).Error
	return wrapError(ctx, "touch session", "Session", s.ID, err)
}

func (r *sessionRepository) FindByUser(ctx context.Context, userID string) ([]Session, error) {
	var rows []models.UserSession
	if err := r.tx.ReadConn(ctx).Where("user_id = ?", userID).Order("last_seen_at DESC").Find(&rows).Error; err != nil {
		return nil, wrapError(ctx, "find sessions", "Session", userID, err)
	}
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, Session{
			ID:         row.ID,
			UserID:     row.UserID,
			UserAgent:  row.UserAgent,
			IPAddress:  row.IPAddress,
			CreatedAt:  row.CreatedAt.UTC(),
			LastSeenAt: row.LastSeenAt.UTC(),
		})
	}
	return out, nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	res := r.tx.Conn(ctx).Where("id = ?", id).Delete(&models.UserSession{})
	if res.Error != nil {
		return wrapError(ctx, "delete session", "Session", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Session", id)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
