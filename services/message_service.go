package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/messaging/models"
	"github.com/anjiri1684/messaging/notifications"
	"gorm.io/gorm"
)

type sendMessageInput struct {
	SenderID   string `validate:"required,max=127,excludes=_"`
	ReceiverID string `validate:"required,max=127,excludes=_,nefield=SenderID"`
	Text       string `validate:"required"`
}

// SendMessage records text from sender to receiver. The conversation is
// created on first contact; its summary, the receiver's unread counter and the
// message row are written in a single transaction. A new_message event is
// published after commit.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID, text string) (*models.Message, error) {
	in := sendMessageInput{SenderID: senderID, ReceiverID: receiverID, Text: text}
	trim(&in.SenderID, &in.ReceiverID, &in.Text)
	if err := s.check(in); err != nil {
		return nil, err
	}
	if err := s.checkTextLength(in.Text); err != nil {
		return nil, err
	}

	var msg models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := getOrCreate(tx, in.SenderID, in.ReceiverID, s.timestamp(), true)
		if err != nil {
			return err
		}

		// Taken under the conversation row lock, so created_at follows commit order.
		now := s.timestamp()

		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]any{"last_message": in.Text, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("update conversation summary: %w", err)
		}

		res := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conv.ID, in.ReceiverID).
			Update("unread_count", gorm.Expr("unread_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("increment unread count: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("increment unread count: participant %s missing from %s", in.ReceiverID, conv.ID)
		}

		msg = models.Message{
			ConversationID: conv.ID,
			SenderID:       in.SenderID,
			ReceiverID:     in.ReceiverID,
			Text:           in.Text,
			CreatedAt:      now,
			Status:         models.MessageStatusSent,
			Read:           false,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classifyStorageError("send message", err)
	}

	s.log.Debug("message stored", "message_id", msg.ID, "conversation_id", msg.ConversationID)
	s.publish(ctx, notifications.NewEvent(
		notifications.EventNewMessage,
		msg.ConversationID,
		[]string{msg.SenderID, msg.ReceiverID},
		notifications.NewMessagePayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			Text:           msg.Text,
			CreatedAt:      msg.CreatedAt,
		},
	))
	return &msg, nil
}
