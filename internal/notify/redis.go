package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel completion events are published on.
const DefaultChannel = "ingest:file-events"

// RedisNotifier publishes events as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisNotifier creates a publisher on channel (DefaultChannel if empty).
func NewRedisNotifier(client *redis.Client, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// Notify publishes ev. Subscribers are not awaited; errors are only logged.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) {
	if n == nil || n.client == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("Failed to encode file event", slog.String("file_id", ev.FileID), slog.String("error", err.Error()))
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("Failed to publish file event",
			slog.String("file_id", ev.FileID),
			slog.String("channel", n.channel),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe delivers decoded events to fn until ctx is cancelled.
func (n *RedisNotifier) Subscribe(ctx context.Context, fn func(Event)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	// Subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.logger.Warn("Dropping malformed file event", slog.String("error", err.Error()))
				continue
			}
			fn(ev)
		}
	}
}
