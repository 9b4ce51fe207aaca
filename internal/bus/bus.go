// Package bus carries search side effects between the service and its
// background recorders.
package bus

import "context"

// Handler consumes one event. Returning an error marks the delivery
// failed for this handler only.
type Handler func(ctx context.Context, event Event) error

// Bus is the publish/subscribe surface. Publishing is fire and forget:
// delivery failures are the subscriber's loss, never the publisher's
// error path for business flow.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Event is the envelope every topic shares. Payload holds the
// topic-specific body and may arrive as a typed struct (memory bus) or
// a decoded JSON map (Kafka), so consumers must not type-assert it.
type Event struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source"`
	// Timestamp is unix milliseconds at creation.
	Timestamp int64 `json:"timestamp"`
	Payload   any   `json:"payload"`
}

const (
	// TopicSearchCompleted carries one event per finished search, consumed
	// by the history and analytics recorders.
	TopicSearchCompleted = "search.completed"

	// TopicContentChanged signals that a user's content changed and their
	// cached responses are stale.
	TopicContentChanged = "search.content.changed"
)
