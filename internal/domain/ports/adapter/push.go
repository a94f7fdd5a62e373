package adapter

import "context"

// PushChannel publishes an event to a named per-user channel. Delivery is
// at-most-once and best-effort; callers never treat errors as fatal.
type PushChannel interface {
	Publish(ctx context.Context, channelKey, eventName string, payload interface{}) error
}

// UserChannelKey names the per-user event channel.
func UserChannelKey(userID string) string { return "user:" + userID + ":events" }
