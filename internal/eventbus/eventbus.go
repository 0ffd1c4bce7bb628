// Package eventbus is the in-process publish/subscribe channel between the
// scheduling engine and its observers.
package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the untyped EventBus used for engine events.
type Bus struct {
	*TypedBus[Event]
}

// New creates a Bus with DefaultBuffer sized subscriptions.
func New() *Bus { return &Bus{TypedBus: NewTyped[Event]()} }

// NewWithBuffer creates a Bus whose subscribers buffer size events.
func NewWithBuffer(size int) *Bus { return &Bus{TypedBus: NewTypedWithBuffer[Event](size)} }

var _ EventBus = (*Bus)(nil)
