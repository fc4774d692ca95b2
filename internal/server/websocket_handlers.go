package server

import (
	"log/slog"

	"knot/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedWebSocket handles GET /api/ws, the server-push feed of post events.
// @Summary Feed socket
// @Description Upgrades to a WebSocket that receives post events. The token may be passed as ?token=
// @Tags realtime
// @Param token query string false "Session token"
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws [get]
func (s *Server) FeedWebSocket() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)
		if userID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("feed socket rejected", slog.String("user_id", userID), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		middleware.Logger.Debug("feed socket connected", slog.String("user_id", userID))
		client.Serve()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "WebSocket upgrade required",
			})
		}
		return upgrade(c)
	}
}
