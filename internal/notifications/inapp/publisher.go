package inapp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// redisEnvelope is the wire format on the Redis fan-out channel.
type redisEnvelope struct {
	UserID string            `json:"user_id"`
	Event  types.InAppEvent  `json:"event"`
}

// Compile-time assertion that RedisPublisher implements InAppPublisher.
var _ corepkg.InAppPublisher = (*RedisPublisher)(nil)

// RedisPublisher fans in-app events out across API instances via Redis
// pub/sub. Each instance publishes here instead of to its local hub, and
// runs a Subscriber that feeds every received event into the local hub, so
// a user connected to instance B still receives events dispatched on
// instance A.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  types.Logger
}

// NewRedisPublisher creates a RedisPublisher on the given pub/sub channel.
func NewRedisPublisher(rdb *redis.Client, channel string, logger types.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
	}
}

// PublishToUser publishes the event to the Redis channel.
func (p *RedisPublisher) PublishToUser(ctx context.Context, userID string, ev types.InAppEvent) error {
	payload, err := json.Marshal(redisEnvelope{UserID: userID, Event: ev})
	if err != nil {
		return fmt.Errorf("PublishToUser: marshaling event: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamRedis,
			"failed to publish in-app event",
			err,
		)
	}
	return nil
}

// Subscribe consumes the Redis channel and feeds events into the local hub
// until ctx is cancelled. Malformed payloads are logged and skipped; one bad
// message must not stall the stream.
func (p *RedisPublisher) Subscribe(ctx context.Context, hub *Hub) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return types.NewAppError(
					types.ErrCodeUpstreamRedis,
					"in-app subscription channel closed",
					nil,
				)
			}

			var env redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.logger.Warn("malformed in-app event payload", "error", err.Error())
				continue
			}

			if err := hub.PublishToUser(ctx, env.UserID, env.Event); err != nil {
				return err
			}
		}
	}
}

// Ping checks Redis connectivity; used by the health endpoint.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
