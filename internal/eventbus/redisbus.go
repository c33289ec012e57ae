package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegischarge/simulator/internal/ocpp"
)

const publishTimeout = 2 * time.Second

// RedisMirror publishes the same events the primary Bus carries onto a
// Redis Pub/Sub channel, for an external live dashboard running outside
// this process. It is a secondary, best-effort fan-out: a publish
// failure is logged and swallowed rather than slowing or breaking the
// primary CSV pipeline, mirroring the teacher's RedisEventBus fallback
// behavior in internal/fabric/redis_event_bus.go.
type RedisMirror struct {
	client  *redis.Client
	channel string
}

// NewRedisMirror wraps an already-configured *redis.Client. channel is
// the Pub/Sub channel every event is marshaled onto as JSON.
func NewRedisMirror(client *redis.Client, channel string) *RedisMirror {
	if channel == "" {
		channel = "ocpp-sim:events"
	}
	return &RedisMirror{client: client, channel: channel}
}

// Handler returns an eventbus.Handler suitable for Bus.Subscribe.
func (m *RedisMirror) Handler() Handler {
	return func(ev ocpp.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("redis mirror: marshal event failed", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.client.Publish(ctx, m.channel, data).Err(); err != nil {
			slog.Warn("redis mirror: publish failed", "channel", m.channel, "error", err)
		}
	}
}

// Dial connects to addr and pings it once to fail fast on misconfiguration.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis mirror: dial %s: %w", addr, err)
	}
	return client, nil
}
