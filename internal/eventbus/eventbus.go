// Package eventbus fans allocation pipeline stage events out to in-process
// observers such as the metrics collector. Payload types live in core/events.
package eventbus

import "sync"

// Event is a pipeline stage event payload.
type Event any

// EventBus delivers published events to every subscriber.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// subscriberBuffer bounds how far a slow observer may fall behind before it
// starts missing events.
const subscriberBuffer = 16

// Bus is the in-process EventBus used by the service.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// New returns an empty bus.
func New() *Bus { return &Bus{} }

// Publish delivers e to every subscriber. Delivery never blocks the
// pipeline: a subscriber with a full buffer misses the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers an observer. The returned channel is closed on
// Unsubscribe or Close; subscribing to a closed bus yields an already-closed
// channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe drops the observer and closes its channel. Unknown channels
// are ignored.
func (b *Bus) Unsubscribe(sub <-chan Event) {
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

// Close shuts the bus down. Every subscriber channel is closed and further
// publishes are dropped.
func (b *Bus) Close() {
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
