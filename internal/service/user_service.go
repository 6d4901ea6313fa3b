package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/repository"
	"facefeed/internal/validation"
)

const (
	maxSettingsKeys     = 50
	maxSettingValueSize = 2048
	loginRefreshAfter   = time.Hour
)

var (
	settingKeyRegex   = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)
	usernameCleanup   = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	themes            = []string{"light", "dark", "system"}
	profileVisibility = []string{"public", "private", "friends"}
)

type UserService struct {
	tx          Transactor
	users       repository.UserRepository
	settings    repository.SettingsRepository
	permissions repository.PermissionRepository
	authz       *Authorizer
	activity    *ActivityLog
}

type CreateUserInput struct {
	ID          string
	Email       string
	Username    string
	DisplayName string
	Role        string
	Status      string
}

// ProvisionInput is the identity directory's view of a signed-in user.
type ProvisionInput struct {
	ID            string
	Email         string
	Username      string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
}

type PreferencesPatch struct {
	Theme              *string `json:"theme"`
	Language           *string `json:"language"`
	EmailNotifications *bool   `json:"emailNotifications"`
	PushNotifications  *bool   `json:"pushNotifications"`
	ProfileVisibility  *string `json:"profileVisibility"`
}

// UpdateUserInput changes only the fields that are set. Role and Status
// require user:manage.
type UpdateUserInput struct {
	ActorID     string
	UserID      string
	Email       *string
	Username    *string
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	SocialLinks map[string]string
	Preferences *PreferencesPatch
	Role        *string
	Status      *string
}

type ListUsersInput struct {
	ViewerID string
	Role     string
	Status   string
	Limit    int
	Offset   int
}

func NewUserService(d Deps) *UserService {
	return &UserService{
		tx:          d.Tx,
		users:       d.Users,
		settings:    d.Settings,
		permissions: d.Permissions,
		authz:       d.Authz,
		activity:    d.Activity,
	}
}

// CreateUser creates an account on behalf of a user manager.
func (s *UserService) CreateUser(ctx context.Context, actorID string, in CreateUserInput) (*domain.User, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := s.authz.Require(ctx, actorID, domain.PermUserManage); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	username := strings.TrimSpace(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if err := validation.ValidateTextLength("Display name", displayName, validation.MaxDisplayNameLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	role := domain.RoleUser
	if in.Role != "" {
		r, err := domain.ParseUserRole(in.Role)
		if err != nil {
			return nil, models.NewValidationError("Invalid role")
		}
		role = r
	}
	status := domain.StatusActive
	if in.Status != "" {
		st, err := domain.ParseUserStatus(in.Status)
		if err != nil {
			return nil, models.NewValidationError("Invalid status")
		}
		status = st
	}

	if err := s.ensureFree(ctx, "", email, username); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID()
	}
	now := nowFunc()
	user := domain.NewUser(domain.UserParams{
		ID:       id,
		Email:    email,
		Username: username,
		Role:     role,
		Status:   status,
		Profile: domain.Profile{
			DisplayName: displayName,
			Preferences: domain.DefaultPreferences(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, actorID, repository.ActionUserCreated, "user", id, map[string]any{
		"role": string(role),
	})
	return user, nil
}

// EnsureUser returns the local account for an authenticated identity,
// creating it from the directory profile on first access.
func (s *UserService) EnsureUser(ctx context.Context, in ProvisionInput) (*domain.User, error) {
	if err := requireActor(in.ID); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, in.ID)
	switch {
	case err == nil:
		return s.refreshLogin(ctx, user)
	case !models.HasCode(err, models.CodeNotFound):
		return nil, err
	}

	now := nowFunc()
	username := provisionUsername(in)
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if r := []rune(displayName); len(r) > validation.MaxDisplayNameLength {
		displayName = string(r[:validation.MaxDisplayNameLength])
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if validation.ValidateEmail(email) != nil {
		email = ""
	}
	// Another account may already hold the email or the derived username.
	if email != "" && s.ensureFree(ctx, in.ID, email, "") != nil {
		email = ""
	}
	if s.ensureFree(ctx, in.ID, "", username) != nil {
		username = fallbackUsername(in.ID)
	}
	user = domain.NewUser(domain.UserParams{
		ID:       in.ID,
		Email:    email,
		Username: username,
		Role:     domain.RoleUser,
		Status:   domain.StatusActive,
		Profile: domain.Profile{
			DisplayName: displayName,
			AvatarURL:   strings.TrimSpace(in.AvatarURL),
			Preferences: domain.DefaultPreferences(),
		},
		Verification: domain.Verification{EmailVerified: in.EmailVerified && email != ""},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  &now,
	})
	if err := s.users.Create(ctx, user); err != nil {
		if !models.HasCode(err, models.CodeConflict) {
			return nil, err
		}
		// A concurrent request may have provisioned the same id.
		existing, findErr := s.users.FindByID(ctx, in.ID)
		if findErr == nil {
			return existing, nil
		}
		if models.HasCode(findErr, models.CodeNotFound) {
			return nil, models.NewForbiddenError("Account is no longer active")
		}
		return nil, findErr
	}
	s.activity.Record(ctx, in.ID, repository.ActionUserCreated, "user", in.ID, map[string]any{
		"provisioned": true,
	})
	return user, nil
}

func (s *UserService) refreshLogin(ctx context.Context, user *domain.User) (*domain.User, error) {
	if !user.Status().CanAuthenticate() {
		return nil, models.NewForbiddenError(fmt.Sprintf("Account is %s", user.Status()))
	}
	now := nowFunc()
	if last := user.LastLoginAt(); last != nil && now.Sub(*last) < loginRefreshAfter {
		return user, nil
	}
	updated := user.RecordLogin(now)
	if err := s.users.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// GetUserProfile returns the full account to its owner and to user managers,
// and the public view to everyone else. Private profiles are hidden from
// other users.
func (s *UserService) GetUserProfile(ctx context.Context, viewerID, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if viewerID == userID {
		return user, nil
	}
	manager, err := s.authz.Can(ctx, viewerID, domain.PermUserManage)
	if err != nil {
		return nil, err
	}
	if manager {
		return user, nil
	}
	if user.Profile().Preferences.ProfileVisibility == "private" {
		return nil, models.NewForbiddenError("This profile is private")
	}
	return user.PublicView(), nil
}

func (s *UserService) UpdateUser(ctx context.Context, in UpdateUserInput) (*domain.User, error) {
	if err := requireActor(in.ActorID); err != nil {
		return nil, err
	}
	manager, err := s.authz.Can(ctx, in.ActorID, domain.PermUserManage)
	if err != nil {
		return nil, err
	}
	if in.ActorID != in.UserID && !manager {
		return nil, models.NewForbiddenError("You can only update your own profile")
	}
	if (in.Role != nil || in.Status != nil) && !manager {
		return nil, models.NewForbiddenError("Insufficient permissions")
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	updated := user

	var email, username string
	if in.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validation.ValidateEmail(email); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if email != user.Email() {
			updated = updated.WithEmail(email)
		} else {
			email = ""
		}
	}
	if in.Username != nil {
		username = strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if username != user.Username() {
			updated = updated.WithUsername(username)
		} else {
			username = ""
		}
	}
	if err := s.ensureFree(ctx, user.ID(), email, username); err != nil {
		return nil, err
	}

	if in.DisplayName != nil || in.Bio != nil || in.AvatarURL != nil || in.SocialLinks != nil || in.Preferences != nil {
		profile, err := patchProfile(user.Profile(), in)
		if err != nil {
			return nil, err
		}
		updated = updated.WithProfile(profile)
	}
	if in.Role != nil {
		role, err := domain.ParseUserRole(*in.Role)
		if err != nil {
			return nil, models.NewValidationError("Invalid role")
		}
		updated = updated.WithRole(role)
	}
	if in.Status != nil {
		status, err := domain.ParseUserStatus(*in.Status)
		if err != nil {
			return nil, models.NewValidationError("Invalid status")
		}
		updated = updated.WithStatus(status)
	}
	if updated == user {
		return user, nil
	}

	if err := s.users.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, in.ActorID, repository.ActionUserUpdated, "user", user.ID(), nil)
	return updated, nil
}

// DeleteUser soft deletes the account.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if actorID != userID {
		if err := s.authz.Require(ctx, actorID, domain.PermUserManage); err != nil {
			return err
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	s.activity.Record(ctx, actorID, repository.ActionUserDeleted, "user", userID, nil)
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, in ListUsersInput) (*PageResult[*domain.User], error) {
	if err := requireActor(in.ViewerID); err != nil {
		return nil, err
	}
	filter := repository.UserFilter{Limit: in.Limit, Offset: in.Offset}
	if in.Role != "" {
		role, err := domain.ParseUserRole(in.Role)
		if err != nil {
			return nil, models.NewValidationError("Invalid role")
		}
		filter.Role = role
	}
	if in.Status != "" {
		status, err := domain.ParseUserStatus(in.Status)
		if err != nil {
			return nil, models.NewValidationError("Invalid status")
		}
		filter.Status = status
	}
	filter.Limit, filter.Offset = repository.NormalizePage(filter.Limit, filter.Offset)
	page, err := s.users.FindWithPagination(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.userPage(ctx, in.ViewerID, page, filter.Limit, filter.Offset)
}

func (s *UserService) SearchUsers(ctx context.Context, viewerID, query string, limit, offset int) (*PageResult[*domain.User], error) {
	if err := requireActor(viewerID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	limit, offset = repository.NormalizePage(limit, offset)
	page, err := s.users.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.userPage(ctx, viewerID, page, limit, offset)
}

func (s *UserService) userPage(ctx context.Context, viewerID string, page repository.Page[*domain.User], limit, offset int) (*PageResult[*domain.User], error) {
	manager, err := s.authz.Can(ctx, viewerID, domain.PermUserManage)
	if err != nil {
		return nil, err
	}
	items := make([]*domain.User, 0, len(page.Items))
	for _, u := range page.Items {
		if !manager && u.ID() != viewerID {
			u = u.PublicView()
		}
		items = append(items, u)
	}
	return &PageResult[*domain.User]{Items: items, Total: page.Total, Limit: limit, Offset: offset}, nil
}

func (s *UserService) GetSettings(ctx context.Context, userID string) (map[string]string, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	return s.settings.Get(ctx, userID)
}

// UpdateSettings upserts values and returns the full settings map.
func (s *UserService) UpdateSettings(ctx context.Context, userID string, values map[string]string) (map[string]string, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if len(values) > maxSettingsKeys {
		return nil, models.NewValidationError(fmt.Sprintf("Too many settings (max %d)", maxSettingsKeys))
	}
	for k, v := range values {
		if !settingKeyRegex.MatchString(k) {
			return nil, models.NewValidationError(fmt.Sprintf("Invalid setting key %q", k))
		}
		if len(v) > maxSettingValueSize {
			return nil, models.NewValidationError(fmt.Sprintf("Setting %q is too long", k))
		}
	}

	var out map[string]string
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.settings.Put(ctx, userID, values); err != nil {
			return err
		}
		current, err := s.settings.Get(ctx, userID)
		if err != nil {
			return err
		}
		if len(current) > maxSettingsKeys {
			return models.NewValidationError(fmt.Sprintf("Too many settings (max %d)", maxSettingsKeys))
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserService) GrantPermission(ctx context.Context, actorID, userID, permission string) error {
	perm, err := s.managePermission(ctx, actorID, userID, permission)
	if err != nil {
		return err
	}
	return s.permissions.Grant(ctx, userID, perm, actorID)
}

func (s *UserService) RevokePermission(ctx context.Context, actorID, userID, permission string) error {
	perm, err := s.managePermission(ctx, actorID, userID, permission)
	if err != nil {
		return err
	}
	return s.permissions.Revoke(ctx, userID, perm)
}

// Permissions returns the effective permissions of userID.
func (s *UserService) Permissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	return s.authz.Permissions(ctx, userID)
}

func (s *UserService) managePermission(ctx context.Context, actorID, userID, permission string) (domain.Permission, error) {
	if err := requireActor(actorID); err != nil {
		return "", err
	}
	if err := s.authz.Require(ctx, actorID, domain.PermUserManage); err != nil {
		return "", err
	}
	perm, err := domain.ParsePermission(permission)
	if err != nil {
		return "", models.NewValidationError("Invalid permission")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return "", err
	}
	return perm, nil
}

// ensureFree returns CONFLICT when another account already uses email or
// username. Empty values are not checked.
func (s *UserService) ensureFree(ctx context.Context, selfID, email, username string) error {
	if email != "" {
		other, err := s.users.FindByEmail(ctx, email)
		if err == nil && other.ID() != selfID {
			return models.NewConflictError("Email is already in use")
		}
		if err != nil && !models.HasCode(err, models.CodeNotFound) {
			return err
		}
	}
	if username != "" {
		other, err := s.users.FindByUsername(ctx, username)
		if err == nil && other.ID() != selfID {
			return models.NewConflictError("Username is already taken")
		}
		if err != nil && !models.HasCode(err, models.CodeNotFound) {
			return err
		}
	}
	return nil
}

func patchProfile(p domain.Profile, in UpdateUserInput) (domain.Profile, error) {
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" {
			return p, models.NewValidationError("Display name is required")
		}
		if err := validation.ValidateTextLength("Display name", name, validation.MaxDisplayNameLength); err != nil {
			return p, models.NewValidationError(err.Error())
		}
		p.DisplayName = name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if err := validation.ValidateTextLength("Bio", bio, validation.MaxBioLength); err != nil {
			return p, models.NewValidationError(err.Error())
		}
		p.Bio = bio
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if avatar != "" {
			if _, err := validation.ValidateHTTPURL(avatar); err != nil {
				return p, models.NewValidationError(err.Error())
			}
		}
		p.AvatarURL = avatar
	}
	if in.SocialLinks != nil {
		links := make(map[string]string, len(in.SocialLinks))
		for name, link := range in.SocialLinks {
			link = strings.TrimSpace(link)
			if link == "" {
				continue
			}
			if _, err := validation.ValidateHTTPURL(link); err != nil {
				return p, models.NewValidationError(fmt.Sprintf("Invalid %s link", name))
			}
			links[name] = link
		}
		p.SocialLinks = links
	}
	if pp := in.Preferences; pp != nil {
		prefs := p.Preferences
		if pp.Theme != nil {
			if !oneOf(*pp.Theme, themes) {
				return p, models.NewValidationError("Invalid theme")
			}
			prefs.Theme = *pp.Theme
		}
		if pp.Language != nil {
			lang := strings.TrimSpace(*pp.Language)
			if lang == "" || len(lang) > 10 {
				return p, models.NewValidationError("Invalid language")
			}
			prefs.Language = lang
		}
		if pp.EmailNotifications != nil {
			prefs.EmailNotifications = *pp.EmailNotifications
		}
		if pp.PushNotifications != nil {
			prefs.PushNotifications = *pp.PushNotifications
		}
		if pp.ProfileVisibility != nil {
			if !oneOf(*pp.ProfileVisibility, profileVisibility) {
				return p, models.NewValidationError("Invalid profile visibility")
			}
			prefs.ProfileVisibility = *pp.ProfileVisibility
		}
		p.Preferences = prefs
	}
	return p, nil
}

// provisionUsername picks a valid username for a new account: the directory's
// username, else the email local part, else one derived from the id.
func provisionUsername(in ProvisionInput) string {
	if u := strings.TrimSpace(in.Username); validation.ValidateUsername(u) == nil {
		return u
	}
	candidate := ""
	if at := strings.IndexByte(in.Email, '@'); at > 0 {
		candidate = usernameCleanup.ReplaceAllString(in.Email[:at], "_")
	}
	if len(candidate) > 30 {
		candidate = candidate[:30]
	}
	if validation.ValidateUsername(candidate) == nil {
		return candidate
	}
	return fallbackUsername(in.ID)
}

func fallbackUsername(id string) string {
	id = usernameCleanup.ReplaceAllString(id, "")
	if len(id) > 25 {
		id = id[len(id)-25:]
	}
	return "user_" + id
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
