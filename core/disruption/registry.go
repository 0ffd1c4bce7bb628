package disruption

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the append-only log of disruption events.
type Registry struct {
	mu     sync.RWMutex
	events []Event
	index  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add appends an event. Ids are unique.
func (r *Registry) Add(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
	}
	r.index[e.ID] = len(r.events)
	r.events = append(r.events, e)
	return nil
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// Resolve marks an event resolved. Only status and timestamp change.
func (r *Registry) Resolve(id string, at time.Time) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
	}
	e := &r.events[i]
	if e.Status != StatusResolved {
		e.Status = StatusResolved
		ts := at
		e.ResolvedAt = &ts
	}
	return *e, nil
}

func (r *Registry) Get(id string) (Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Event{}, false
	}
	return r.events[i], true
}

// List returns every event in insertion order.
func (r *Registry) List() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}

// Active returns the unresolved events in insertion order.
func (r *Registry) Active() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.Status == StatusActive {
			out = append(out, e)
		}
	}
	return out
}
