package sddb

import (
	"sync"
	"sync/atomic"
)

// EventKind identifies the kind of mutation an Event reports.
type EventKind string

const (
	DocCreated        EventKind = "doc.created"
	DocUpdated        EventKind = "doc.updated"
	DocDeleted        EventKind = "doc.deleted"
	CollectionCreated EventKind = "collection.created"
	CollectionDeleted EventKind = "collection.deleted"
)

// An Event describes a completed mutation of a DB. Events are published after
// the mutation has been applied and written to the data file.
type Event struct {
	Kind       EventKind
	Collection string

	// ID is the id of the affected document, or "" for collection events.
	ID string

	// Doc is a copy of the stored document for created and updated events,
	// and nil otherwise. Receivers own their copy.
	Doc Document
}

// A Publisher receives events from a DB. Publish must not block for long;
// it is called synchronously by the goroutine that performed the mutation.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

// publish delivers e to the publisher of db, if any. A panic in the publisher
// is logged and does not affect the caller.
func (db *DB) publish(e Event) {
	if db.events == nil {
		return
	}
	defer func() {
		if x := recover(); x != nil {
			db.log.Errorw("event publisher panicked", "kind", e.Kind, "collection", e.Collection, "panic", x)
		}
	}()
	db.events.Publish(e)
}

// A Hub is a Publisher that fans events out to any number of subscribers.
// Publish never blocks: an event is dropped for any subscriber whose buffer
// is full. A zero Hub is ready for use.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int

	dropped atomic.Int64
}

// Subscribe registers a new subscriber with the given channel buffer size,
// and returns the channel on which it receives events along with a function
// that cancels the subscription and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 0))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Publish implements the Publisher interface.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		ev := e
		ev.Doc = e.Doc.Clone()
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of event deliveries dropped because a
// subscriber's buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
