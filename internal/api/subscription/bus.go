// Package subscription owns real-time delivery: the in-process document
// event bus and the graphql-transport-ws connection lifecycle.
package subscription

import (
	"sync"

	"github.com/inkwellhq/inkwell/internal/api/domain"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking writers.
const subscriberBuffer = 16

// Bus fans document events out to subscribers keyed by document ID. Publish
// never blocks; delivery to a full subscriber is dropped.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]chan domain.DocumentEvent
	next uint64
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[uint64]chan domain.DocumentEvent),
	}
}

// Subscribe registers interest in one document's events. The returned cancel
// func unregisters and closes the channel; calling it more than once is safe.
func (b *Bus) Subscribe(documentID string) (<-chan domain.DocumentEvent, func()) {
	ch := make(chan domain.DocumentEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	if b.subs[documentID] == nil {
		b.subs[documentID] = make(map[uint64]chan domain.DocumentEvent)
	}
	b.subs[documentID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[documentID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.subs, documentID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the document.
func (b *Bus) Publish(ev domain.DocumentEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[ev.Document.ID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than stall the writer.
		}
	}
}

// Subscribers reports the number of live subscriptions for a document.
func (b *Bus) Subscribers(documentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[documentID])
}

// Topics reports the number of documents with at least one subscriber.
// Housekeeping logs this as a registry audit.
func (b *Bus) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
