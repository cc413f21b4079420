package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topics broadcast by the gateway. Independent UI regions (cart badge, session
// indicator) subscribe so they stay consistent without polling.
const (
	TopicCartChanged    = "cart.changed"
	TopicSessionChanged = "session.changed"
)

// Event is one change notification scoped to a visitor.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Topic     string    `json:"topic"`
	VisitorID string    `json:"visitor_id"`
	At        time.Time `json:"at"`
}

// Bus is an in-process publish/subscribe fan-out. Publish never blocks: a
// subscriber that cannot keep up loses events rather than stalling mutators.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]chan Event
	next uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe registers for a topic. The returned cancel func must be called to
// release the subscription; after cancel the channel is closed.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans an event out to all subscribers of its topic.
func (b *Bus) Publish(topic, visitorID string) {
	if b == nil {
		return
	}
	evt := Event{
		ID:        uuid.New(),
		Topic:     topic,
		VisitorID: visitorID,
		At:        time.Now().UTC(),
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}
