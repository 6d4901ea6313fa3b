package repository

import (
	"context"
	"strings"
	"time"

	"facefeed/internal/cache"
	"facefeed/internal/database"
	"facefeed/internal/domain"
	"facefeed/internal/models"

	"gorm.io/gorm"
)

type UserFilter struct {
	Role   domain.UserRole
	Status domain.UserStatus
	Limit  int
	Offset int
}

type UserStatsDelta struct {
	Posts     int64
	Followers int64
	Following int64
	Likes     int64
	Comments  int64
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error
	FindWithPagination(ctx context.Context, filter UserFilter) (Page[*domain.User], error)
	Search(ctx context.Context, query string, limit, offset int) (Page[*domain.User], error)
	CountByRole(ctx context.Context) (map[domain.UserRole]int64, error)
	AdjustStats(ctx context.Context, id string, delta UserStatsDelta) error
}

type userRepository struct {
	tx    *database.TxManager
	cache *cache.Cache
}

// NewUserRepository returns a UserRepository. cache may be nil.
func NewUserRepository(tx *database.TxManager, c *cache.Cache) UserRepository {
	return &userRepository{tx: tx, cache: c}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var row models.User
	fetch := func() error {
		return wrapError(ctx, "find user", "User", id, r.tx.ReadConn(ctx).Where("id = ?", id).Take(&row).Error)
	}

	var err error
	if _, inTx := r.tx.GetTx(ctx); inTx {
		err = fetch()
	} else {
		err = r.cache.Aside(ctx, cache.UserKey(id), &row, cache.UserTTL, fetch)
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(ctx, &row)
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.findOne(ctx, "email = ?", email)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username = ?", strings.TrimSpace(username))
}

func (r *userRepository) findOne(ctx context.Context, cond string, arg string) (*domain.User, error) {
	var row models.User
	if err := r.tx.ReadConn(ctx).Where(cond, arg).Take(&row).Error; err != nil {
		return nil, wrapError(ctx, "find user", "User", arg, err)
	}
	return r.toDomain(ctx, &row)
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	row, err := userToRow(user)
	if err != nil {
		return models.NewInternalError(err)
	}
	return wrapError(ctx, "create user", "User", row.ID, r.tx.Conn(ctx).Create(row).Error)
}

// Update persists every field except the counters.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	row, err := userToRow(user)
	if err != nil {
		return models.NewInternalError(err)
	}
	res := r.tx.Conn(ctx).Model(&models.User{}).Where("id = ?", row.ID).Updates(map[string]any{
		"email":          row.Email,
		"username":       row.Username,
		"role":           row.Role,
		"status":         row.Status,
		"profile":        row.Profile,
		"verification":   row.Verification,
		"search_text":    row.SearchText,
		"total_earnings": row.TotalEarnings,
		"updated_at":     row.UpdatedAt,
		"last_login_at":  row.LastLoginAt,
	})
	if res.Error != nil {
		return wrapError(ctx, "update user", "User", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", row.ID)
	}
	r.invalidate(ctx, row.ID)
	return nil
}

// Delete soft deletes: the status becomes inactive and deleted_at is set.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := r.tx.Conn(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(domain.StatusInactive),
		"updated_at": now,
		"deleted_at": now,
	})
	if res.Error != nil {
		return wrapError(ctx, "delete user", "User", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *userRepository) FindWithPagination(ctx context.Context, filter UserFilter) (Page[*domain.User], error) {
	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	q := r.tx.ReadConn(ctx).Model(&models.User{})
	if filter.Role != "" {
		q = q.Where("role = ?", string(filter.Role))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	return r.page(ctx, q.Session(&gorm.Session{}), "created_at DESC", limit, offset)
}

// Search matches query against username, display name and email.
func (r *userRepository) Search(ctx context.Context, query string, limit, offset int) (Page[*domain.User], error) {
	limit, offset = NormalizePage(limit, offset)
	q := r.tx.ReadConn(ctx).Model(&models.User{}).
		Where(`search_text LIKE ? ESCAPE '\'`, containsPattern(query)).
		Session(&gorm.Session{})
	return r.page(ctx, q, "username ASC", limit, offset)
}

func (r *userRepository) page(ctx context.Context, q *gorm.DB, order string, limit, offset int) (Page[*domain.User], error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[*domain.User]{}, wrapError(ctx, "count users", "User", "", err)
	}
	var rows []models.User
	if err := q.Order(order).Order("id ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return Page[*domain.User]{}, wrapError(ctx, "list users", "User", "", err)
	}
	items, err := rowsToUsers(rows)
	if err != nil {
		return Page[*domain.User]{}, wrapError(ctx, "decode users", "User", "", err)
	}
	return Page[*domain.User]{Items: items, Total: total}, nil
}

func (r *userRepository) CountByRole(ctx context.Context) (map[domain.UserRole]int64, error) {
	var rows []groupCount
	err := r.tx.ReadConn(ctx).Model(&models.User{}).
		Select("role AS group_key, COUNT(*) AS group_count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapError(ctx, "count users by role", "User", "", err)
	}
	out := make(map[domain.UserRole]int64, len(rows))
	for _, row := range rows {
		out[domain.UserRole(row.Key)] = row.Count
	}
	return out, nil
}

// AdjustStats also reaches soft-deleted users: their posts and comments stay
// in place and keep attributing counters to them.
func (r *userRepository) AdjustStats(ctx context.Context, id string, delta UserStatsDelta) error {
	err := adjustCounters(ctx, r.tx.Conn(ctx).Unscoped(), &models.User{}, "User", id, map[string]int64{
		"posts_count":     delta.Posts,
		"followers_count": delta.Followers,
		"following_count": delta.Following,
		"likes_count":     delta.Likes,
		"comments_count":  delta.Comments,
	})
	if err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *userRepository) invalidate(ctx context.Context, id string) {
	r.tx.AfterCommit(ctx, func(ctx context.Context) { r.cache.InvalidateUser(ctx, id) })
}

func (r *userRepository) toDomain(ctx context.Context, row *models.User) (*domain.User, error) {
	u, err := rowToUser(row)
	if err != nil {
		return nil, wrapError(ctx, "decode user", "User", row.ID, err)
	}
	return u, nil
}
