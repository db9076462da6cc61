// Package events carries run and artifact progress out of the coordinator
// over a channel-based pub-sub bus. Transports (TUI, websocket push) attach
// as subscribers; the coordinator never knows who is listening.
package events

import "sync"

const defaultBufSize = 256

// Bus is a topic-based pub-sub event bus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a channel receiving events published to topic.
// bufSize <= 0 selects the default buffer.
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := b.newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *Bus) SubscribeAll(bufSize int) <-chan Event {
	ch := b.newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Publish delivers event to topic subscribers and all-topic subscribers.
// Delivery is non-blocking: a full subscriber buffer drops the event for
// that subscriber rather than stalling the coordinator.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}

func (b *Bus) newChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return make(chan Event, bufSize)
}
