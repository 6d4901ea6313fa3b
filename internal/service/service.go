// Package service holds the use-cases. Each validates its input, loads the
// entities it needs, and runs every multi-row write inside one transaction.
package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/notifications"
	"facefeed/internal/observability"
	"facefeed/internal/repository"

	"github.com/google/uuid"
)

// Transactor runs fn inside a transaction carried by its context.
// *database.TxManager implements it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MediaRemover deletes media ownerID uploaded, by its public URL. URLs that
// do not point at ownerID's uploads in our blob store are ignored.
type MediaRemover interface {
	DeleteURL(ctx context.Context, ownerID, rawURL string) error
}

// Deps are the collaborators shared by the services. Optional fields may be
// nil: Media, Events, Activity and the supporting repositories.
type Deps struct {
	Tx          Transactor
	Posts       repository.PostRepository
	Comments    repository.CommentRepository
	Likes       repository.LikeRepository
	Users       repository.UserRepository
	Engagement  repository.EngagementRepository
	Settings    repository.SettingsRepository
	Permissions repository.PermissionRepository
	Activity    *ActivityLog
	Authz       *Authorizer
	Media       MediaRemover
	Events      notifications.Publisher
	// VideoHosts is the allowlist for post video links.
	VideoHosts []string
}

var (
	nowFunc = func() time.Time { return time.Now().UTC() }
	newID   = uuid.NewString
)

func requireActor(userID string) error {
	if userID == "" {
		return models.NewUnauthorizedError("Authentication required")
	}
	return nil
}

// Authorizer answers permission checks from the user's role plus any
// per-user grants.
type Authorizer struct {
	users  repository.UserRepository
	grants repository.PermissionRepository
}

// NewAuthorizer returns an Authorizer. grants may be nil.
func NewAuthorizer(users repository.UserRepository, grants repository.PermissionRepository) *Authorizer {
	return &Authorizer{users: users, grants: grants}
}

// Can reports whether userID holds perm. Unknown users hold nothing.
func (a *Authorizer) Can(ctx context.Context, userID string, perm domain.Permission) (bool, error) {
	if userID == "" {
		return false, nil
	}
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.userCan(ctx, user, perm)
}

func (a *Authorizer) userCan(ctx context.Context, user *domain.User, perm domain.Permission) (bool, error) {
	if user.HasPermission(perm) {
		return true, nil
	}
	if a.grants == nil {
		return false, nil
	}
	granted, err := a.grants.ListByUser(ctx, user.ID())
	if err != nil {
		return false, err
	}
	return slices.Contains(granted, perm), nil
}

// Require returns FORBIDDEN unless userID holds perm.
func (a *Authorizer) Require(ctx context.Context, userID string, perm domain.Permission) error {
	ok, err := a.Can(ctx, userID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("Insufficient permissions")
	}
	return nil
}

// Permissions returns the role permissions of userID merged with its grants.
func (a *Authorizer) Permissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms := user.Role().Permissions()
	if a.grants != nil {
		granted, err := a.grants.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, p := range granted {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
	}
	return perms, nil
}

// ActivityLog writes the audit trail. Failures are logged and never returned:
// the action being audited has already committed.
type ActivityLog struct {
	repo repository.ActivityRepository
}

// NewActivityLog returns an ActivityLog. repo may be nil.
func NewActivityLog(repo repository.ActivityRepository) *ActivityLog {
	return &ActivityLog{repo: repo}
}

func (l *ActivityLog) Record(ctx context.Context, userID, action, targetType, targetID string, metadata map[string]any) {
	observability.ContentActions.WithLabelValues(action).Inc()
	if l == nil || l.repo == nil {
		return
	}
	err := l.repo.Record(ctx, repository.Activity{
		UserID:     userID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to record activity",
			slog.String("action", action),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns a user's activity, newest first.
func (l *ActivityLog) List(ctx context.Context, userID string, limit, offset int) ([]repository.Activity, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if l == nil || l.repo == nil {
		return []repository.Activity{}, nil
	}
	return l.repo.ListByUser(ctx, userID, limit, offset)
}

func publisherOrDiscard(p notifications.Publisher) notifications.Publisher {
	if p == nil {
		return notifications.Discard
	}
	return p
}
