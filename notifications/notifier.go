// Package notifications publishes conversation change events after the
// originating transaction has committed. Delivery is best-effort and
// at-most-once: publishers log failures and never report them to callers.
package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventNewMessage       EventKind = "new_message"
	EventConversationRead EventKind = "conversation_read"
)

type NewMessagePayload struct {
	MessageID      uint64    `json:"messageID"`
	ConversationID string    `json:"conversationID"`
	SenderID       string    `json:"senderID"`
	ReceiverID     string    `json:"receiverID"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ConversationReadPayload struct {
	ConversationID string    `json:"conversationID"`
	UserID         string    `json:"userID"`
	Timestamp      time.Time `json:"timestamp"`
}

// Event is the envelope every publisher receives. Recipients lists the users
// a push transport should route the event to.
type Event struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	Recipients     []string  `json:"recipients"`
	Payload        any       `json:"payload"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewEvent(kind EventKind, conversationID string, recipients []string, payload any) Event {
	return Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		ConversationID: conversationID,
		Recipients:     recipients,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

type Noop struct{}

func NewNoop() Noop                         { return Noop{} }
func (Noop) Publish(context.Context, Event) {}

// Fanout hands every event to each publisher in turn. A publisher that panics
// is logged and skipped.
type Fanout struct {
	publishers []Publisher
	log        *slog.Logger
}

func NewFanout(log *slog.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, log: log}
}

func (f *Fanout) Publish(ctx context.Context, evt Event) {
	for _, p := range f.publishers {
		f.publishOne(ctx, p, evt)
	}
}

func (f *Fanout) publishOne(ctx context.Context, p Publisher, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("publisher panicked", "event_id", evt.ID, "kind", evt.Kind, "panic", r)
		}
	}()
	p.Publish(ctx, evt)
}
