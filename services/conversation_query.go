package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/messaging/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ConversationSummary struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	UnreadCounts map[string]int64 `json:"unread_counts"`
	LastMessage  string           `json:"last_message"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ListForUser returns every conversation userID takes part in, most recently
// updated first. The result is not paginated.
func (s *ChatService) ListForUser(ctx context.Context, userID string) ([]ConversationSummary, error) {
	in := userRef{UserID: userID}
	trim(&in.UserID)
	if err := s.check(in); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	memberOf := db.Model(&models.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", in.UserID)

	var convs []models.Conversation
	err := db.
		Preload("Participants", func(q *gorm.DB) *gorm.DB { return q.Order("user_id asc") }).
		Where("id IN (?)", memberOf).
		Order("updated_at desc, id asc").
		Find(&convs).Error
	if err != nil {
		return nil, classifyStorageError("list conversations", err)
	}

	return lo.Map(convs, func(c models.Conversation, _ int) ConversationSummary {
		return ConversationSummary{
			ID: c.ID,
			Participants: lo.Map(c.Participants, func(p models.ConversationParticipant, _ int) string {
				return p.UserID
			}),
			UnreadCounts: lo.SliceToMap(c.Participants, func(p models.ConversationParticipant) (string, int64) {
				return p.UserID, p.UnreadCount
			}),
			LastMessage: c.LastMessage,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
	}), nil
}

// GetMessages returns the whole history of a conversation, oldest first.
func (s *ChatService) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.getMessages(ctx, conversationID, "")
}

// GetMessagesForUser is GetMessages restricted to participants of the conversation.
func (s *ChatService) GetMessagesForUser(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	in := conversationRef{ConversationID: conversationID, UserID: userID}
	trim(&in.ConversationID, &in.UserID)
	if err := s.check(in); err != nil {
		return nil, err
	}
	return s.getMessages(ctx, in.ConversationID, in.UserID)
}

func (s *ChatService) getMessages(ctx context.Context, conversationID, viewerID string) ([]models.Message, error) {
	var ref struct {
		ConversationID string `validate:"required,max=255"`
	}
	ref.ConversationID = conversationID
	trim(&ref.ConversationID)
	if err := s.check(ref); err != nil {
		return nil, err
	}

	msgs := []models.Message{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversationExists(tx, ref.ConversationID); err != nil {
			return err
		}
		if viewerID != "" {
			var n int64
			if err := tx.Model(&models.ConversationParticipant{}).
				Where("conversation_id = ? AND user_id = ?", ref.ConversationID, viewerID).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s in %s", ErrUnauthorized, viewerID, ref.ConversationID)
			}
		}
		return tx.Where("conversation_id = ?", ref.ConversationID).
			Order("created_at asc, id asc").
			Find(&msgs).Error
	})
	if err != nil {
		return nil, classifyStorageError("get messages", err)
	}
	return msgs, nil
}

// UnreadTotal sums userID's unread counters across all conversations.
func (s *ChatService) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	in := userRef{UserID: userID}
	trim(&in.UserID)
	if err := s.check(in); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Select("COALESCE(SUM(unread_count), 0)").
		Where("user_id = ?", in.UserID).
		Scan(&total).Error
	if err != nil {
		return 0, classifyStorageError("unread total", err)
	}
	return total, nil
}
