package services

import (
	"context"
	"errors"
	"testing"

	"github.com/anjiri1684/messaging/models"
	"github.com/anjiri1684/messaging/notifications"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func Test_MarkRead_Clears_Only_Readers_Messages(t *testing.T) {
	req := require.New(t)
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "u1", "u2", "Hello")
	req.NoError(err)
	_, err = svc.SendMessage(ctx, "u1", "u2", "Are you there?")
	req.NoError(err)
	_, err = svc.SendMessage(ctx, "u2", "u1", "Yes")
	req.NoError(err)

	updated, err := svc.MarkRead(ctx, "u1_u2", "u2")
	req.NoError(err)
	req.True(updated)

	req.EqualValues(0, participant(t, db, "u1_u2", "u2").UnreadCount)
	req.EqualValues(1, participant(t, db, "u1_u2", "u1").UnreadCount)

	var toU2 []models.Message
	req.NoError(db.Where("receiver_id = ?", "u2").Find(&toU2).Error)
	req.Len(toU2, 2)
	for _, m := range toU2 {
		req.True(m.Read)
		req.Equal(models.MessageStatusRead, m.Status)
	}
	var toU1 models.Message
	req.NoError(db.Where("receiver_id = ?", "u1").Take(&toU1).Error)
	req.False(toU1.Read)
	req.Equal(models.MessageStatusSent, toU1.Status)

	events := pub.Events()
	last := events[len(events)-1]
	req.Equal(notifications.EventConversationRead, last.Kind)
	req.Equal([]string{"u1", "u2"}, last.Recipients)
	payload, ok := last.Payload.(notifications.ConversationReadPayload)
	req.True(ok)
	req.Equal("u1_u2", payload.ConversationID)
	req.Equal("u2", payload.UserID)
	req.False(payload.Timestamp.IsZero())
}

func Test_MarkRead_Nothing_Unread_Is_NoOp(t *testing.T) {
	req := require.New(t)
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "u1", "u2", "Hello")
	req.NoError(err)
	updated, err := svc.MarkRead(ctx, "u1_u2", "u2")
	req.NoError(err)
	req.True(updated)
	before := len(pub.Events())

	updated, err = svc.MarkRead(ctx, "u1_u2", "u2")
	req.NoError(err)
	req.False(updated)
	req.Len(pub.Events(), before)
	req.EqualValues(0, participant(t, db, "u1_u2", "u2").UnreadCount)

	// the sender never had anything unread
	updated, err = svc.MarkRead(ctx, "u1_u2", "u1")
	req.NoError(err)
	req.False(updated)
}

func Test_MarkRead_Unknown_Conversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.MarkRead(context.Background(), "nobody_none", "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_MarkRead_Non_Participant(t *testing.T) {
	req := require.New(t)
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "u1", "u2", "Hello")
	req.NoError(err)

	_, err = svc.MarkRead(ctx, "u1_u2", "u3")
	req.ErrorIs(err, ErrUnauthorized)
	req.EqualValues(1, participant(t, db, "u1_u2", "u2").UnreadCount)
}

func Test_MarkRead_Validates_Input(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.MarkRead(context.Background(), " ", "u1")
	require.ErrorIs(t, err, ErrValidation)
}

func Test_MarkRead_Rolls_Back_When_Flagging_Messages_Fails(t *testing.T) {
	req := require.New(t)
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "u1", "u2", "Hello")
	req.NoError(err)
	req.NoError(db.Callback().Update().Before("gorm:update").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	updated, err := svc.MarkRead(ctx, "u1_u2", "u2")
	req.ErrorContains(err, "disk full")
	req.False(updated)

	req.EqualValues(1, participant(t, db, "u1_u2", "u2").UnreadCount)
	var unread int64
	req.NoError(db.Model(&models.Message{}).Where("read = ?", false).Count(&unread).Error)
	req.EqualValues(1, unread)
	req.Len(pub.Events(), 1)
	req.Equal(notifications.EventNewMessage, pub.Events()[0].Kind)
}

func Test_MarkRead_Rejects_Separator_In_User_ID(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.MarkRead(context.Background(), "a_b_c", "b_c")
	require.ErrorIs(t, err, ErrValidation)
}
