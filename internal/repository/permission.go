package repository

import (
	"context"
	"time"

	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"

	"gorm.io/gorm/clause"
)

// PermissionRepository stores per-user grants layered over the role table.
type PermissionRepository interface {
	Grant(ctx context.Context, userID string, perm domain.Permission, grantedBy string) error
	Revoke(ctx context.Context, userID string, perm domain.Permission) error
	ListByUser(ctx context.Context, userID string) ([]domain.Permission, error)
}

type permissionRepository struct {
	tx *database.TxManager
}

func NewPermissionRepository(tx *database.TxManager) PermissionRepository {
	return &permissionRepository{tx: tx}
}

// Grant is idempotent.
func (r *permissionRepository) Grant(ctx context.Context, userID string, perm domain.Permission, grantedBy string) error {
	row := models.UserPermission{
		UserID:     userID,
		Permission: string(perm),
		GrantedBy:  grantedBy,
		CreatedAt:  time.Now().UTC(),
	}
	err := r.tx.Conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return wrapError(ctx, "grant permission", "Permission", userID, err)
}

func (r *permissionRepository) Revoke(ctx context.Context, userID string, perm domain.Permission) error {
	err := r.tx.Conn(ctx).Where("user_id = ? AND permission = ?", userID, string(perm)).
		Delete(&models.UserPermission{}).Error
	return wrapError(ctx, "revoke permission", "Permission", userID, err)
}

func (r *permissionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Permission, error) {
	var perms []string
	err := r.tx.ReadConn(ctx).Model(&models.UserPermission{}).
		Where("user_id = ?", userID).
		Order("permission ASC").
		Pluck("permission", &perms).Error
	if err != nil {
		return nil, wrapError(ctx, "list permissions", "Permission", userID, err)
	}
	out := make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, domain.Permission(p))
	}
	return out, nil
}
