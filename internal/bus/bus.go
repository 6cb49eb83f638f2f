package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Event kinds are dotted paths ("index.changed", "stream.message") and a
// subscription matches every kind its namespace is a prefix of.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
	seq  uint64
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish stamps the event with a sequence number and timestamp (when unset)
// and delivers it to all matching subscribers. Delivery is non-blocking: a
// subscriber whose buffer is full misses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	b.seq++
	evt.Seq = b.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a channel receiving events whose kind starts with
// namespace, plus an unsubscribe function. bufSize controls the channel
// buffer; slow consumers drop events rather than block publishers.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
