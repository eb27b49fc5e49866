package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/anjiri1684/messaging/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const conversationIDSeparator = "_"

// ResolveID returns the conversation id shared by two users, independent of
// argument order. User ids never contain the separator and are at most 127
// characters, so distinct pairs map to distinct ids that fit the 255 column.
func ResolveID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + conversationIDSeparator + userB
}

type pairInput struct {
	UserA string `validate:"required,max=127,excludes=_"`
	UserB string `validate:"required,max=127,excludes=_,nefield=UserA"`
}

// GetOrCreateConversation makes sure the conversation between the two users
// and both participant rows exist, and returns its id.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error) {
	in := pairInput{UserA: userA, UserB: userB}
	trim(&in.UserA, &in.UserB)
	if err := s.check(in); err != nil {
		return "", err
	}

	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := getOrCreate(tx, in.UserA, in.UserB, s.timestamp(), false)
		if err != nil {
			return err
		}
		id = conv.ID
		return nil
	})
	if err != nil {
		return "", classifyStorageError("get or create conversation", err)
	}
	return id, nil
}

// getOrCreate inserts the conversation and participant rows if absent and
// reads the row back. Concurrent callers for the same pair all land on the
// single row guarded by the primary key. With lock set the conversation row
// stays locked until tx ends.
func getOrCreate(tx *gorm.DB, userA, userB string, now time.Time, lock bool) (*models.Conversation, error) {
	id := ResolveID(userA, userB)

	conv := models.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("insert conversation %s: %w", id, err)
	}

	// Rows go in sorted order so concurrent callers take row locks alike.
	pair := []string{userA, userB}
	slices.Sort(pair)
	participants := []models.ConversationParticipant{
		{ConversationID: id, UserID: pair[0], CreatedAt: now},
		{ConversationID: id, UserID: pair[1], CreatedAt: now},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error; err != nil {
		return nil, fmt.Errorf("insert participants %s: %w", id, err)
	}

	members, err := participantIDs(tx, id)
	if err != nil {
		return nil, fmt.Errorf("list participants %s: %w", id, err)
	}
	slices.Sort(members)
	if !slices.Equal(members, pair) {
		return nil, fmt.Errorf("%w: conversation %s has members %v", ErrUnauthorized, id, members)
	}

	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var stored models.Conversation
	if err := q.Where("id = ?", id).Take(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %s vanished after insert: %w", id, err)
		}
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	return &stored, nil
}

// conversationExists returns ErrNotFound when id has no conversation row.
func conversationExists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&models.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// participantIDs returns the conversation's members ordered by user id.
func participantIDs(tx *gorm.DB, id string) ([]string, error) {
	var ids []string
	err := tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", id).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}
