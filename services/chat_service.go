package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/anjiri1684/messaging/notifications"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const defaultMaxTextLength = 4000

// ChatService owns conversations, participants and messages. Every mutating
// call runs in one transaction on a connection borrowed from db's pool;
// events go out through the notifier only after commit.
type ChatService struct {
	db         *gorm.DB
	notifier   notifications.Publisher
	log        *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
	maxTextLen int
}

type Option func(*ChatService)

// WithClock replaces the wall clock used for message and conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ChatService) { s.now = now }
}

func WithMaxTextLength(n int) Option {
	return func(s *ChatService) {
		if n > 0 {
			s.maxTextLen = n
		}
	}
}

func NewChatService(db *gorm.DB, notifier notifications.Publisher, log *slog.Logger, opts ...Option) *ChatService {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &ChatService{
		db:         db,
		notifier:   notifier,
		log:        log,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		maxTextLen: defaultMaxTextLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is truncated to the store's microsecond precision so returned
// records compare equal to what a later read yields.
func (s *ChatService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *ChatService) publish(ctx context.Context, evt notifications.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked", "event_id", evt.ID, "kind", evt.Kind, "panic", r)
		}
	}()
	s.notifier.Publish(context.WithoutCancel(ctx), evt)
}

type userRef struct {
	UserID string `validate:"required,max=127,excludes=_"`
}

type conversationRef struct {
	ConversationID string `validate:"required,max=255"`
	UserID         string `validate:"required,max=127,excludes=_"`
}

// check runs struct validation and converts validator output to a ValidationError.
func (s *ChatService) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"input": err.Error()}}
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields[fe.Field()] = rule
	}
	return out
}

func (s *ChatService) checkTextLength(text string) error {
	if err := s.validate.Var(text, "max="+strconv.Itoa(s.maxTextLen)); err != nil {
		return invalid("Text", "max="+strconv.Itoa(s.maxTextLen))
	}
	return nil
}

func trim(values ...*string) {
	for _, v := range values {
		*v = strings.TrimSpace(*v)
	}
}
