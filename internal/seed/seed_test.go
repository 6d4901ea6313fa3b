package seed

import (
	"context"
	"testing"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/repository"
	"facefeed/internal/service"
	"facefeed/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset([]byte(`
seed: 42
users: 2
posts_per_user: 1
accounts:
  - id: user_admin
    email: Admin@Example.com
    username: admin
    role: admin
`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.RandSeed)
	assert.Equal(t, 2, p.Users)
	assert.Equal(t, 1, p.PostsPerUser)
	assert.Equal(t, DefaultPreset().CommentsPerPost, p.CommentsPerPost)
	assert.InDelta(t, 0.3, p.LikeRatio, 1e-9)
	require.Len(t, p.Accounts, 1)
	assert.Equal(t, "admin", p.Accounts[0].Role)

	_, err = ParsePreset([]byte("like_ratio: 1.5"))
	assert.Error(t, err)
	_, err = ParsePreset([]byte("users: -1"))
	assert.Error(t, err)
	_, err = ParsePreset([]byte("users: [oops"))
	assert.Error(t, err)
}

func newDeps(t *testing.T) (service.Deps, *gorm.DB) {
	t.Helper()
	tm, db := testutil.NewTxManager(t)
	users := repository.NewUserRepository(tm, nil)
	perms := repository.NewPermissionRepository(tm)
	return service.Deps{
		Tx:          tm,
		Posts:       repository.NewPostRepository(tm, nil),
		Comments:    repository.NewCommentRepository(tm),
		Likes:       repository.NewLikeRepository(tm),
		Users:       users,
		Engagement:  repository.NewEngagementRepository(tm),
		Settings:    repository.NewSettingsRepository(tm),
		Permissions: perms,
		Activity:    service.NewActivityLog(repository.NewActivityRepository(tm)),
		Authz:       service.NewAuthorizer(users, perms),
	}, db
}

func TestSeeder_RunAndClear(t *testing.T) {
	d, db := newDeps(t)
	ctx := context.Background()
	preset := Preset{
		RandSeed:        7,
		Users:           3,
		PostsPerUser:    2,
		CommentsPerPost: 1,
		LikeRatio:       1,
		Accounts: []PresetUser{
			{ID: "user_admin", Email: "Admin@Example.com", Username: "admin", Role: "admin"},
		},
	}

	sum, err := NewSeeder(d).Run(ctx, preset)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, 8, sum.Posts)
	assert.LessOrEqual(t, sum.Comments, sum.Posts)
	assert.Equal(t, sum.Comments*4, sum.Reactions, "every user reacts to every public post")

	admin, err := d.Users.FindByID(ctx, "user_admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role())
	assert.Equal(t, "admin@example.com", admin.Email())
	assert.Equal(t, "admin", admin.Profile().DisplayName)

	// Running again reuses the fixed account.
	_, err = NewSeeder(d).Run(ctx, Preset{Accounts: preset.Accounts})
	require.NoError(t, err)

	require.NoError(t, Clear(ctx, db))
	_, err = d.Users.FindByID(ctx, "user_admin")
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestSeeder_BadRole(t *testing.T) {
	d, _ := newDeps(t)
	_, err := NewSeeder(d).Run(context.Background(), Preset{
		Accounts: []PresetUser{{ID: "u1", Email: "a@example.com", Username: "someone", Role: "overlord"}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}
