package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/models"

	"gorm.io/gorm/clause"
)

// SettingsRepository stores per-user key/value settings.
type SettingsRepository interface {
	Get(ctx context.Context, userID string) (map[string]string, error)
	Put(ctx context.Context, userID string, values map[string]string) error
}

type settingsRepository struct {
	tx *database.TxManager
}

func NewSettingsRepository(tx *database.TxManager) SettingsRepository {
	return &settingsRepository{tx: tx}
}

func (r *settingsRepository) Get(ctx context.Context, userID string) (map[string]string, error) {
	var rows []models.UserSetting
	if err := r.tx.ReadConn(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, wrapError(ctx, "get settings", "Settings", userID, err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Put upserts values; keys not present are left alone.
func (r *settingsRepository) Put(ctx context.Context, userID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.UserSetting, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.UserSetting{UserID: userID, Key: k, Value: v, UpdatedAt: now})
	}
	err := r.tx.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	return wrapError(ctx, "put settings", "Settings", userID, err)
}
