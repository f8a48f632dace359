package status

import "github.com/smahi/mirrorbot/internal/models"

// EventType identifies what happened to an operation.
type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventCompleted EventType = "completed"
	EventRemoved   EventType = "removed"
)

// Event is delivered to subscribers whenever the registry mutates an
// operation. The embedded Operation is a snapshot; subscribers may keep it.
type Event struct {
	Type        EventType
	OperationID string
	Operation   models.Operation
}

// Subscribe registers a new observer and returns its event channel together
// with an unsubscribe function. Delivery is best-effort: a subscriber that
// falls behind has events dropped rather than blocking registry mutators.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	r.mu.Unlock()

	unsubscribe := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[id]; ok {
			delete(r.subscribers, id)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, unsubscribe
}

// emit fans an event out to every subscriber without ever blocking. Callers
// must not hold r.mu.
func (r *Registry) emit(ev Event) {
	r.mu.Lock()
	channels := make([]chan Event, 0, len(r.subscribers))
	for _, ch := range r.subscribers {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop instead of stalling the registry.
		}
	}
}
