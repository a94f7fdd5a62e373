package push

import (
	"context"

	"mediavault/internal/domain/ports/adapter"
)

var _ adapter.PushChannel = (*NoopPush)(nil)

// NoopPush discards every event. Used in dev mode and tests.
type NoopPush struct{}

func NewNoopPush() *NoopPush { return &NoopPush{} }

func (NoopPush) Publish(ctx context.Context, channelKey, eventName string, payload interface{}) error {
	return nil
}
