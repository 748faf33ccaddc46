// Package cluster provides optional multi-instance coordination via
// Redis: broadcast fan-out across instances through pub/sub, and an
// instance registry fed by heartbeats.
package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pushrelay/pushrelay/internal/metrics"
	"github.com/pushrelay/pushrelay/internal/relay"
)

const broadcastChannel = "relay:broadcast"

// Fanout relays broadcast messages between instances. Publish sends a
// message to the shared pub/sub channel; Listen dispatches every
// received message (including this instance's own) to the local
// registry, so local and remote clients see the same stream.
type Fanout struct {
	rdb        *redis.Client
	dispatcher *relay.Dispatcher
}

// NewFanout creates a fanout bound to the local dispatcher.
func NewFanout(rdb *redis.Client, dispatcher *relay.Dispatcher) *Fanout {
	return &Fanout{rdb: rdb, dispatcher: dispatcher}
}

// Publish sends payload to the shared broadcast channel.
func (f *Fanout) Publish(ctx context.Context, payload []byte) error {
	if err := f.rdb.Publish(ctx, broadcastChannel, payload).Err(); err != nil {
		metrics.PubSubPublishFailures.Inc()
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

// Listen subscribes to the broadcast channel and dispatches each
// message to the local registry. Blocks until ctx is cancelled.
func (f *Fanout) Listen(ctx context.Context) {
	pubsub := f.rdb.Subscribe(ctx, broadcastChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			metrics.PubSubMessagesReceived.WithLabelValues(broadcastChannel).Inc()
			delivered := f.dispatcher.Broadcast([]byte(msg.Payload))
			slog.Debug("Dispatched pub/sub broadcast", "delivered", delivered)
		case <-ctx.Done():
			return
		}
	}
}
