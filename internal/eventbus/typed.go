package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Publishing never blocks: events for a full subscriber are dropped and
// counted.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// NewTyped creates a TypedBus with DefaultBuffer sized subscriptions.
func NewTyped[T any]() *TypedBus[T] { return NewTypedWithBuffer[T](DefaultBuffer) }

// NewTypedWithBuffer creates a TypedBus whose subscriber channels hold size
// events. Non-positive sizes fall back to DefaultBuffer.
func NewTypedWithBuffer[T any](size int) *TypedBus[T] {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &TypedBus[T]{buffer: size}
}

// Publish sends the event to all subscribers.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber
// was full.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
