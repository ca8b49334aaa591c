package event

import (
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(Event{Type: TypeConnectivity, Data: true})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != TypeConnectivity {
				t.Errorf("event type = %s, want %s", ev.Type, TypeConnectivity)
			}
			if ev.Timestamp.IsZero() {
				t.Error("timestamp not stamped on publish")
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishPreservesTimestamp(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Type: TypeSyncComplete, Timestamp: ts})

	ev := <-ch
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, ts)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Overfill the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(Event{Type: TypeQueueUpdate, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel
	bus.Publish(Event{Type: TypeQueueUpdate})
}
