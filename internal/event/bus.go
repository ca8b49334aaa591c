// Package event provides in-process fan-out of sync subsystem events
// to interested consumers (CLI status display, dashboard broadcasts).
package event

import (
	"sync"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeSyncComplete is emitted once per drain pass with the
	// aggregate outcome.
	TypeSyncComplete Type = "sync_complete"

	// TypeQueueUpdate is emitted when the pending queue grows.
	TypeQueueUpdate Type = "queue_update"

	// TypeConnectivity is emitted on online/offline transitions.
	TypeConnectivity Type = "connectivity"
)

// Event is a single broadcast message.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Bus fans events out to subscriber channels. Slow subscribers are
// skipped rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends the event to all subscribers, stamping the timestamp
// if unset.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber is behind; drop to avoid blocking the publisher
		}
	}
	b.mu.RUnlock()
}

// Subscribe returns a buffered channel that receives all new events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
