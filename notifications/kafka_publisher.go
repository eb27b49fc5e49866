package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes envelopes to a single topic keyed by conversation id,
// so one conversation's events stay ordered within a partition.
type KafkaPublisher struct {
	w       *kafka.Writer
	timeout time.Duration
	log     *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, log *slog.Logger) *KafkaPublisher {
	if topic == "" {
		topic = "chat.events"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	// Writers are safe for concurrent use
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
	}
	return &KafkaPublisher{w: w, timeout: timeout, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("kafka publish: marshal event", "event_id", evt.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(evt.ConversationID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(evt.Kind)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("kafka publish failed", "event_id", evt.ID, "kind", evt.Kind, "error", err)
	}
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
