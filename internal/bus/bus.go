// Package bus abstracts the cross-instance fan-out layer: per-document
// pub/sub channels plus a small TTL'd key-value side for presence entries.
// The store remains the source of truth; a lost bus message never corrupts
// document state.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrNoEntry reports a missing or expired key on the KV side.
var ErrNoEntry = errors.New("no entry")

// Handler receives one message published on a subscribed channel.
type Handler func(channel string, payload []byte)

// Bus is the adapter contract consumed by the room manager. Subscribe
// registers at most one handler per channel per connection; the room
// manager's subscription registry keeps calls idempotent.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, h Handler) error
	Unsubscribe(ctx context.Context, channel string) error

	// Key-value side, used for presence entries. A ttl of zero or less
	// means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)

	Close() error
}

// Channel and key naming shared by all instances.

// DocChannel carries accepted operations for one document.
func DocChannel(documentID string) string { return "doc:" + documentID }

// PresenceChannel carries join/leave/cursor events for one document.
func PresenceChannel(documentID string) string { return "presence:" + documentID }

// PresenceKey addresses one user's presence entry.
func PresenceKey(documentID, userID string) string {
	return "presence:" + documentID + ":" + userID
}

// PresencePattern matches every presence entry of one document.
func PresencePattern(documentID string) string { return "presence:" + documentID + ":*" }
