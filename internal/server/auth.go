package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"facefeed/internal/identity"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/repository"
	"facefeed/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const wsTicketTTL = 30 * time.Second

type wsTicket struct {
	userID    string
	expiresAt time.Time
}

// AuthRequired verifies the session token, provisions the local account on
// first sight and records the session. The user id lands in Locals("userID")
// and in the request context for logging.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := identity.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}
		if err := s.authenticate(c, token); err != nil {
			return models.Respond(c, err)
		}
		return c.Next()
	}
}

// OptionalAuth authenticates the request when it carries a valid session and
// otherwise lets it through anonymously.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := identity.BearerToken(c.Get(fiber.HeaderAuthorization)); ok {
			if err := s.authenticate(c, token); err != nil && !models.HasCode(err, models.CodeUnauthorized) {
				return models.Respond(c, err)
			}
		}
		return c.Next()
	}
}

func (s *Server) authenticate(c *fiber.Ctx, token string) error {
	if s.verifier == nil {
		return models.NewUnavailableError("Authentication is not configured", nil)
	}
	session, err := s.verifier.Verify(token)
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired session")
	}

	ctx := middleware.WithUserID(c.UserContext(), session.UserID)
	if err := s.ensureUser(ctx, session.UserID); err != nil {
		return err
	}
	s.touchSession(ctx, session, c)

	c.Locals("userID", session.UserID)
	c.SetUserContext(ctx)
	return nil
}

// ensureUser returns the active local account, creating it from the identity
// directory profile when it does not exist yet.
func (s *Server) ensureUser(ctx context.Context, userID string) error {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err == nil {
		if !user.Status().CanAuthenticate() {
			return models.NewForbiddenError(fmt.Sprintf("Account is %s", user.Status()))
		}
		return nil
	}
	if !models.HasCode(err, models.CodeNotFound) {
		return err
	}

	in := service.ProvisionInput{ID: userID}
	if s.directory != nil {
		du, err := s.directory.GetUser(ctx, userID)
		switch {
		case err == nil:
			in.Email = du.Email
			in.EmailVerified = du.EmailVerified
			in.Username = du.Username
			in.DisplayName = du.DisplayName()
			in.AvatarURL = du.ImageURL
		case models.HasCode(err, models.CodeNotFound):
			return models.NewUnauthorizedError("Unknown identity")
		default:
			// Provision with what the token tells us; the profile can be
			// completed later.
			middleware.Logger.WarnContext(ctx, "identity directory lookup failed",
				slog.String("error", err.Error()))
		}
	}
	_, err = s.userService.EnsureUser(ctx, in)
	return err
}

func (s *Server) touchSession(ctx context.Context, session *identity.Session, c *fiber.Ctx) {
	if s.sessions == nil || session.SessionID == "" {
		return
	}
	err := s.sessions.Touch(ctx, repository.Session{
		ID:        session.SessionID,
		UserID:    session.UserID,
		UserAgent: c.Get(fiber.HeaderUserAgent),
		IPAddress: c.IP(),
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "failed to record session", slog.String("error", err.Error()))
	}
}

// FlagRequired answers 404 when the named feature is off for the caller.
func (s *Server) FlagRequired(flag string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.flags.Enabled(flag, currentUserID(c)) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Feature", flag))
		}
		return c.Next()
	}
}

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on a
// websocket handshake, so they trade their session for a short-lived,
// single-use ticket passed as ?ticket=.
// @Summary Issue websocket ticket
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expiresIn=int}
// @Failure 401 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := currentUserID(c)
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return models.Respond(c, models.NewInternalError(err))
	}
	ticket := hex.EncodeToString(buf)

	if s.redis != nil {
		if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket), userID, wsTicketTTL).Err(); err != nil {
			return models.Respond(c, models.NewUnavailableError("Ticket store unavailable", err))
		}
	} else {
		s.ticketMu.Lock()
		s.pruneTicketsLocked(time.Now())
		s.wsTickets[ticket] = wsTicket{userID: userID, expiresAt: time.Now().Add(wsTicketTTL)}
		s.ticketMu.Unlock()
	}

	return c.JSON(fiber.Map{
		"ticket":    ticket,
		"expiresIn": int(wsTicketTTL.Seconds()),
	})
}

// redeemTicket consumes a ticket and returns its user id.
func (s *Server) redeemTicket(ctx context.Context, ticket string) (string, error) {
	if s.redis != nil {
		userID, err := s.redis.GetDel(ctx, wsTicketKey(ticket)).Result()
		if errors.Is(err, redis.Nil) {
			return "", models.NewUnauthorizedError("Invalid or expired websocket ticket")
		}
		if err != nil {
			return "", models.NewUnavailableError("Ticket store unavailable", err)
		}
		return userID, nil
	}

	s.ticketMu.Lock()
	defer s.ticketMu.Unlock()
	t, ok := s.wsTickets[ticket]
	delete(s.wsTickets, ticket)
	if !ok || time.Now().After(t.expiresAt) {
		return "", models.NewUnauthorizedError("Invalid or expired websocket ticket")
	}
	return t.userID, nil
}

func (s *Server) pruneTicketsLocked(now time.Time) {
	for k, t := range s.wsTickets {
		if now.After(t.expiresAt) {
			delete(s.wsTickets, k)
		}
	}
}

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}
