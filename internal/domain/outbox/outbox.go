package outbox

import "context"

// Event is any domain event with a name identifier. The name doubles as the
// topic on broker-backed buses.
type Event interface {
	EventName() string
}

// Keyed is implemented by events that must be ordered relative to each other.
// Buses route events with the same key to the same partition or shard.
type Keyed interface {
	EventKey() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
