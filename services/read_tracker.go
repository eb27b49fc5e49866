package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/messaging/models"
	"github.com/anjiri1684/messaging/notifications"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarkRead clears userID's unread counter in the conversation and flags every
// message addressed to them as read. It returns false, without error, when
// there was nothing unread.
//
// The participant row is locked for the whole transaction, which serializes
// the reset against SendMessage's increment of the same row.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, userID string) (bool, error) {
	in := conversationRef{ConversationID: conversationID, UserID: userID}
	trim(&in.ConversationID, &in.UserID)
	if err := s.check(in); err != nil {
		return false, err
	}

	var (
		updated    bool
		recipients []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversationExists(tx, in.ConversationID); err != nil {
			return err
		}

		var p models.ConversationParticipant
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Where("conversation_id = ? AND user_id = ?", in.ConversationID, in.UserID).
			Take(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s in %s", ErrUnauthorized, in.UserID, in.ConversationID)
		}
		if err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}
		if p.UnreadCount == 0 {
			return nil
		}

		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", in.ConversationID, in.UserID).
			Update("unread_count", 0).Error; err != nil {
			return fmt.Errorf("reset unread count: %w", err)
		}
		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND read = ?", in.ConversationID, in.UserID, false).
			Updates(map[string]any{"read": true, "status": models.MessageStatusRead}).Error; err != nil {
			return fmt.Errorf("flag messages read: %w", err)
		}

		recipients, err = participantIDs(tx, in.ConversationID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, classifyStorageError("mark read", err)
	}
	if !updated {
		return false, nil
	}

	s.publish(ctx, notifications.NewEvent(
		notifications.EventConversationRead,
		in.ConversationID,
		recipients,
		notifications.ConversationReadPayload{
			ConversationID: in.ConversationID,
			UserID:         in.UserID,
			Timestamp:      s.timestamp(),
		},
	))
	return true, nil
}
