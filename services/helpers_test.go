package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/messaging/database"
	"github.com/anjiri1684/messaging/models"
	"github.com/anjiri1684/messaging/notifications"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{at: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(c.step)
	return c.at
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(context.Context, notifications.Event) { panic("notifier down") }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenTestDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newTestService(t *testing.T, opts ...Option) (*ChatService, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := newTestDB(t)
	pub := &recordingPublisher{}
	opts = append([]Option{WithClock(newStepClock(time.Second).Now)}, opts...)
	return NewChatService(db, pub, slog.Default(), opts...), db, pub
}

func participant(t *testing.T, db *gorm.DB, conversationID, userID string) models.ConversationParticipant {
	t.Helper()
	var p models.ConversationParticipant
	require.NoError(t, db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).Take(&p).Error)
	return p
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
