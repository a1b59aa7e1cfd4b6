package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/retry"
)

// Publisher is the part of *redis.Client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on a pub/sub channel, where the chat
// surface subscribes and relays them to players.
type RedisNotifier struct {
	client  Publisher
	channel string
	retry   *retry.Config
	logger  *zap.Logger
}

// NewRedisNotifier creates a RedisNotifier publishing on channel.
func NewRedisNotifier(client Publisher, channel string, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		retry:   retry.NotifyConfig(),
		logger:  logger.Named("redis-notifier"),
	}
}

// Notify publishes event, retrying transient redis errors briefly.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	var receivers int64
	err = retry.DoIfRetryable(ctx, n.retry, func() error {
		var pubErr error
		receivers, pubErr = n.client.Publish(ctx, n.channel, payload).Result()
		return pubErr
	})
	if err != nil {
		return fmt.Errorf("publish %s event to %s: %w", event.Type, n.channel, err)
	}

	if receivers == 0 {
		n.logger.Warn("Notification published with no subscribers",
			zap.String("channel", n.channel),
			zap.String("type", string(event.Type)),
			zap.Int64("user_id", event.UserID))
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
