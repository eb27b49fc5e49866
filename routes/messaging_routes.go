package routes

import (
	"context"
	"log/slog"

	"github.com/anjiri1684/messaging/handlers"
	"github.com/anjiri1684/messaging/middleware"
	ws "github.com/anjiri1684/messaging/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type MessagingDeps struct {
	Service   handlers.ChatService
	Hub       *ws.Hub
	JWTSecret string
	Log       *slog.Logger
	// Ctx bounds work started from websocket connections.
	Ctx context.Context
}

func MessagingRoutes(app *fiber.App, deps MessagingDeps) {
	h := handlers.NewMessagingHandler(deps.Service, deps.Log)
	api := app.Group("/api/v1")

	conversations := api.Group("/conversations", middleware.Protected(deps.JWTSecret))
	conversations.Get("", h.GetUserConversations)
	conversations.Post("", h.CreateOrGetConversation)
	conversations.Get("/unread", h.GetUnreadTotal)
	conversations.Get("/:conversationId/messages", h.GetConversationMessages)
	conversations.Post("/:conversationId/read", h.MarkConversationRead)

	api.Post("/messages", middleware.Protected(deps.JWTSecret), h.SendMessage)

	if deps.Hub == nil {
		return
	}
	ctx := deps.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	api.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws", websocket.New(handlers.ServeWs(ctx, deps.Service, deps.Hub, deps.JWTSecret, deps.Log)))
}

// HealthRoutes exposes a liveness probe backed by ping.
func HealthRoutes(app *fiber.App, ping func(ctx context.Context) error) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
