package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anjiri1684/messaging/middleware"
	"github.com/anjiri1684/messaging/models"
	"github.com/anjiri1684/messaging/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ChatService is the subset of services.ChatService the HTTP layer calls.
type ChatService interface {
	GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error)
	SendMessage(ctx context.Context, senderID, receiverID, text string) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	GetMessagesForUser(ctx context.Context, conversationID, userID string) ([]models.Message, error)
	UnreadTotal(ctx context.Context, userID string) (int64, error)
}

type MessagingHandler struct {
	svc      ChatService
	log      *slog.Logger
	validate *validator.Validate
}

func NewMessagingHandler(svc ChatService, log *slog.Logger) *MessagingHandler {
	return &MessagingHandler{svc: svc, log: log, validate: validator.New()}
}

type createConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
}

func (h *MessagingHandler) GetUserConversations(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	list, err := h.svc.ListForUser(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(list)
}

func (h *MessagingHandler) CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Cannot parse JSON"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	id, err := h.svc.GetOrCreateConversation(c.UserContext(), userID, req.RecipientID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"id": id})
}

func (h *MessagingHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	total, err := h.svc.UnreadTotal(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"unread": total})
}

func (h *MessagingHandler) GetConversationMessages(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	msgs, err := h.svc.GetMessagesForUser(c.UserContext(), c.Params("conversationId"), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msgs)
}

func (h *MessagingHandler) MarkConversationRead(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	updated, err := h.svc.MarkRead(c.UserContext(), c.Params("conversationId"), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

func (h *MessagingHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "Cannot parse JSON"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	msg, err := h.svc.SendMessage(c.UserContext(), userID, req.ReceiverID, req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// StatusFor maps service error kinds to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrConcurrency):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *MessagingHandler) fail(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	message := err.Error()
	if code >= fiber.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Path(), "method", c.Method(), "error", err)
		message = fiber.ErrInternalServerError.Message
		if code == fiber.StatusServiceUnavailable {
			message = fiber.ErrServiceUnavailable.Message
		}
	}
	return c.Status(code).JSON(fiber.Map{"status": "error", "message": message})
}
