package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisPublisher PUBLISHes JSON envelopes on "<prefix>:<kind>".
type RedisPublisher struct {
	cli     *redis.Client
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

func NewRedisPublisher(url, prefix string, timeout time.Duration, log *slog.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notifications: redis parse url: %w", err)
	}
	if prefix == "" {
		prefix = "chat"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisPublisher{cli: redis.NewClient(opt), prefix: prefix, timeout: timeout, log: log}, nil
}

func (p *RedisPublisher) Channel(kind EventKind) string { return p.prefix + ":" + string(kind) }

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("redis publish: marshal event", "event_id", evt.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.cli.Publish(ctx, p.Channel(evt.Kind), b).Err(); err != nil {
		p.log.Warn("redis publish failed", "event_id", evt.ID, "kind", evt.Kind, "error", err)
	}
}

func (p *RedisPublisher) Close() error { return p.cli.Close() }
