package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"facefeed/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis channel carrying feed events between instances.
const EventsChannel = "facefeed:events"

// Notifier publishes events into Redis and subscribes to them.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier returns a Notifier, or nil when rdb is nil.
func NewNotifier(rdb *redis.Client) *Notifier {
	if rdb == nil {
		return nil
	}
	return &Notifier{rdb: rdb}
}

// Publish sends an encoded event, addressed to recipient or to everyone.
func (n *Notifier) Publish(ctx context.Context, recipient string, event []byte) error {
	payload, err := json.Marshal(envelope{Recipient: recipient, Event: event})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, EventsChannel, payload).Err()
}

// Subscribe calls deliver for every event published on EventsChannel until
// ctx is cancelled. It returns once the subscription is confirmed.
func (n *Notifier) Subscribe(ctx context.Context, deliver func(recipient string, event []byte)) error {
	sub := n.rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
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
				n.dispatch(msg.Payload, deliver)
			}
		}
	}()
	return nil
}

func (n *Notifier) dispatch(payload string, deliver func(string, []byte)) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in event subscriber",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		middleware.Logger.Warn("dropping malformed event", slog.String("error", err.Error()))
		return
	}
	deliver(env.Recipient, env.Event)
}
