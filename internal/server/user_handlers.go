package server

import (
	"facefeed/internal/domain"
	"facefeed/internal/models"
	"facefeed/internal/repository"
	"facefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type meResponse struct {
	User         *domain.User        `json:"user"`
	Permissions  []domain.Permission `json:"permissions"`
	FeatureFlags map[string]bool     `json:"featureFlags"`
}

type updateUserRequest struct {
	Email       *string                   `json:"email"`
	Username    *string                   `json:"username"`
	DisplayName *string                   `json:"displayName"`
	Bio         *string                   `json:"bio"`
	AvatarURL   *string                   `json:"avatarUrl"`
	SocialLinks map[string]string         `json:"socialLinks"`
	Preferences *service.PreferencesPatch `json:"preferences"`
	Role        *string                   `json:"role"`
	Status      *string                   `json:"status"`
}

// GetMe handles GET /api/users/me
// @Summary Current user
// @Description The caller's account, provisioned from the identity provider on first access
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user=object,permissions=[]string,featureFlags=object}
// @Failure 401 {object} models.ErrorResponse
// @Router /users/me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	user, err := s.userService.EnsureUser(ctx, service.ProvisionInput{ID: userID})
	if err != nil {
		return models.Respond(c, err)
	}
	perms, err := s.userService.Permissions(ctx, userID)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(meResponse{
		User:         user,
		Permissions:  perms,
		FeatureFlags: s.flags.Snapshot(userID),
	})
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	user, err := s.userService.GetUserProfile(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// ListUsers handles GET /api/users. With ?q= it searches by name instead.
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search text"
// @Param role query string false "Role filter"
// @Param status query string false "Status filter"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} object{items=[]object,total=int,limit=int,offset=int}
// @Router /users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	viewerID := currentUserID(c)
	if q := c.Query("q"); q != "" {
		res, err := s.userService.SearchUsers(c.UserContext(), viewerID, q, page.Limit, page.Offset)
		if err != nil {
			return models.Respond(c, err)
		}
		return c.JSON(res)
	}
	res, err := s.userService.ListUsers(c.UserContext(), service.ListUsersInput{
		ViewerID: viewerID,
		Role:     c.Query("role"),
		Status:   c.Query("status"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// CreateUser handles POST /api/users. Requires user:manage.
func (s *Server) CreateUser(c *fiber.Ctx) error {
	var req struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Role        string `json:"role"`
		Status      string `json:"status"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	user, err := s.userService.CreateUser(c.UserContext(), currentUserID(c), service.CreateUserInput{
		ID:          req.ID,
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Status:      req.Status,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// UpdateUser handles PUT /api/users/:id
// @Summary Update user
// @Description Self or user:manage. Role and status need user:manage.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body updateUserRequest true "Fields to change"
// @Success 200 {object} object
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	var req updateUserRequest
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	user, err := s.userService.UpdateUser(c.UserContext(), service.UpdateUserInput{
		ActorID:     currentUserID(c),
		UserID:      id,
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		SocialLinks: req.SocialLinks,
		Preferences: req.Preferences,
		Role:        req.Role,
		Status:      req.Status,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(user)
}

// DeleteUser handles DELETE /api/users/:id (soft delete).
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	if err := s.userService.DeleteUser(c.UserContext(), currentUserID(c), id); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMySettings handles GET /api/users/me/settings
func (s *Server) GetMySettings(c *fiber.Ctx) error {
	settings, err := s.userService.GetSettings(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(settings)
}

// UpdateMySettings handles PUT /api/users/me/settings
// @Summary Update settings
// @Description Merges the given keys into the caller's settings
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object true "Settings"
// @Success 200 {object} object
// @Router /users/me/settings [put]
func (s *Server) UpdateMySettings(c *fiber.Ctx) error {
	var values map[string]string
	if err := parseBody(c, &values); err != nil {
		return models.Respond(c, err)
	}
	settings, err := s.userService.UpdateSettings(c.UserContext(), currentUserID(c), values)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(settings)
}

// GetMyActivity handles GET /api/users/me/activity
func (s *Server) GetMyActivity(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	items, err := s.deps.Activity.List(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

// GetMySessions handles GET /api/users/me/sessions
func (s *Server) GetMySessions(c *fiber.Ctx) error {
	if s.sessions == nil {
		return c.JSON(fiber.Map{"items": []repository.Session{}})
	}
	items, err := s.sessions.FindByUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

// GetFeatureFlags handles GET /api/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(s.flags.Snapshot(currentUserID(c)))
}
