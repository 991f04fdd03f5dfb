package rbac

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	catalogVersionKey = "rbac:catalog:version"
	// CatalogBumpChannel carries catalog invalidations between gateway replicas.
	CatalogBumpChannel = "rbac.catalog.bump"
)

// Notifier announces that the permission catalog changed on the backend.
type Notifier interface {
	Publish(ctx context.Context, origin string) error
}

// Bump is the payload of a catalog invalidation.
type Bump struct {
	Version int64  `json:"version"`
	Origin  string `json:"origin"`
}

// RedisNotifier versions the catalog in Redis and fans bumps out over pub/sub.
// A nil notifier, or one without a client, is a no-op.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisNotifier builds a RedisNotifier.
func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

// Version returns the current catalog version, initialising it when missing.
func (n *RedisNotifier) Version(ctx context.Context) (int64, error) {
	if n == nil || n.client == nil {
		return 0, nil
	}
	ver, err := n.client.Get(ctx, catalogVersionKey).Int64()
	if err == redis.Nil {
		if err := n.client.SetNX(ctx, catalogVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return n.client.Get(ctx, catalogVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Publish increments the version and broadcasts it tagged with origin.
func (n *RedisNotifier) Publish(ctx context.Context, origin string) error {
	if n == nil || n.client == nil {
		return nil
	}
	ver, err := n.client.Incr(ctx, catalogVersionKey).Result()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Bump{Version: ver, Origin: origin})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, CatalogBumpChannel, payload).Err()
}

// Listen subscribes to bumps and calls fn for each until ctx ends. It returns
// once the subscription is confirmed so no bump published afterwards is
// missed.
func (n *RedisNotifier) Listen(ctx context.Context, fn func(Bump)) error {
	if n == nil || n.client == nil {
		return nil
	}
	pubsub := n.client.Subscribe(ctx, CatalogBumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var bump Bump
				if err := json.Unmarshal([]byte(msg.Payload), &bump); err != nil {
					if n.logger != nil {
						n.logger.Warn("malformed catalog bump", slog.String("payload", msg.Payload), slog.Any("error", err))
					}
					continue
				}
				fn(bump)
			}
		}
	}()
	return nil
}
