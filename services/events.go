package services

import (
	"context"
	"log"
	"sync"
)

// Domain event names consumed by the real-time layer.
const (
	EventSubmissionNew           = "submission.new"
	EventSubmissionStatusChanged = "submission.statusChanged"
	EventMatchNew                = "match.new"
	EventMatchStatusChanged      = "match.statusChanged"
	EventRoundStatusChanged      = "match.round.statusChanged"
)

// Event carries the updated entity to subscribers. Delivery and fan-out
// past this process boundary are the transport's concern.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
}

// EventBus is an in-process publish/subscribe hub. Subscriptions are scoped
// to a context: when the context ends the channel is closed and the
// subscriber removed, so a disconnecting client can never leak a listener.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber bound to ctx. The returned channel is
// buffered; a subscriber that falls behind loses events rather than
// blocking publishers.
func (b *EventBus) Subscribe(ctx context.Context) <-chan Event {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to every live subscriber without blocking.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[EVENTS] Subscriber %d too slow, dropped %s", id, ev.Name)
		}
	}
}
