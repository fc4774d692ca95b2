package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"knot/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	BroadcastChannel  = "feed:broadcast"
	userChannelPrefix = "feed:user:"
)

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// Notifier publishes feed events into Redis channels. A nil client makes
// every call a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether events reach Redis.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends a payload to one user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID string, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishBroadcast sends a payload to every connected user.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, BroadcastChannel, payload).Err()
}

// PublishEvent encodes ev and sends it to userID, or to everyone when userID is empty.
func (n *Notifier) PublishEvent(ctx context.Context, userID string, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if userID == "" {
		return n.PublishBroadcast(ctx, payload)
	}
	return n.PublishUser(ctx, userID, payload)
}

// StartPatternSubscriber subscribes to the broadcast and per-user channels and
// calls onMessage for each message until ctx is done.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", BroadcastChannel)
	// Wait for the subscription so early publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe feed channels: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in feed subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
