package server

import (
	"log/slog"

	"facefeed/internal/middleware"
	"facefeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade accepts websocket handshakes only. A ?ticket= from
// POST /api/ws/ticket identifies the user; without one the connection is
// anonymous and receives broadcast events only.
func (s *Server) WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if s.hub == nil {
			return models.Respond(c, models.NewUnavailableError("Realtime events are disabled", nil))
		}
		if ticket := c.Query("ticket"); ticket != "" {
			userID, err := s.redeemTicket(c.UserContext(), ticket)
			if err != nil {
				return models.Respond(c, err)
			}
			c.Locals("userID", userID)
		}
		return c.Next()
	}
}

// WebSocketHandler streams feed events (post_created, post_reaction_updated,
// comment_created, comment_deleted) to the connection.
func (s *Server) WebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket rejected",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"reason":"`+err.Error()+`"}}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
