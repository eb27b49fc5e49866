package handlers

import (
	"context"
	"log/slog"

	"github.com/anjiri1684/messaging/middleware"
	"github.com/anjiri1684/messaging/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type inboundFrame struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"text"`
}

// ServeWs authenticates a websocket with its first frame, registers it with
// the hub and accepts {"type":"message"} frames as SendMessage calls.
// Events reach the socket only through the hub. ctx bounds the lifetime of
// sends made from the socket.
func ServeWs(ctx context.Context, svc ChatService, hub *websocket.Hub, secret string, log *slog.Logger) func(*websocketcontrib.Conn) {
	return func(c *websocketcontrib.Conn) {
		var auth authFrame
		if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
			log.Warn("websocket auth failed: invalid or missing auth message", "error", err)
			_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
			_ = c.Close()
			return
		}
		userID, err := middleware.ParseToken(auth.Token, secret)
		if err != nil {
			log.Warn("websocket auth failed: invalid token", "error", err)
			_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
			_ = c.Close()
			return
		}

		// The hub owns writes from here on.
		client := &websocket.Client{UserID: userID, Conn: c}
		hub.Register(client)
		log.Info("websocket client registered", "user_id", userID)
		defer func() {
			hub.Unregister(client)
			_ = c.Close()
		}()

		for {
			var frame inboundFrame
			if err := c.ReadJSON(&frame); err != nil {
				if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
					log.Debug("websocket closed", "user_id", userID)
				} else {
					log.Warn("websocket read error", "user_id", userID, "error", err)
				}
				return
			}
			if frame.Type != "message" {
				continue
			}
			// Failures are logged only: the hub is the single writer on this socket.
			if _, err := svc.SendMessage(ctx, userID, frame.ReceiverID, frame.Text); err != nil {
				log.Warn("websocket send failed", "user_id", userID, "error", err, "status", StatusFor(err))
			}
		}
	}
}
