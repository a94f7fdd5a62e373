package push

import (
	"context"
	"encoding/json"
	"fmt"

	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/infra/redis"
)

var _ adapter.PushChannel = (*RedisPush)(nil)

// RedisPush delivers events over redis pub/sub. Per-user channels carry a
// small JSON envelope; subscribers that are not listening simply miss the
// event, which matches the at-most-once contract.
type RedisPush struct {
	client redis.RedisClient
}

func NewRedisPush(client redis.RedisClient) *RedisPush {
	return &RedisPush{client: client}
}

type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

func (p *RedisPush) Publish(ctx context.Context, channelKey, eventName string, payload interface{}) error {
	b, err := json.Marshal(envelope{Event: eventName, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}
	return p.client.Publish(ctx, channelKey, b)
}
