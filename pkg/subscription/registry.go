// Package subscription tracks which callers still want to hear about the
// operations they started.
//
// A caller tags an operation with its subscriber id. When the result is
// ready, delivery goes through Gate: if the caller has unsubscribed in the
// meantime, the callback and any events are silently dropped. The work
// itself is never cancelled, only its notification.
package subscription

import "sync"

// Registry is the set of currently subscribed identifiers.
//
// Thread Safety:
// Safe for concurrent Subscribe, Unsubscribe, IsSubscribed and Gate calls.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]struct{}),
	}
}

// Subscribe registers id. Subscribing twice is a no-op.
func (r *Registry) Subscribe(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.subscribers[id] = struct{}{}
	r.mu.Unlock()
}

// Unsubscribe removes id. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	delete(r.subscribers, id)
	r.mu.Unlock()
}

// IsSubscribed reports whether id is currently registered.
func (r *Registry) IsSubscribed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribers[id]
	return ok
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Allows reports whether a delivery tagged with id may proceed: always for
// an empty id, otherwise only while id is subscribed.
func (r *Registry) Allows(id string) bool {
	return id == "" || r.IsSubscribed(id)
}

// Gate invokes deliver iff Allows(id) and reports whether it did.
//
// Dropping a delivery is not an error.
func (r *Registry) Gate(id string, deliver func()) bool {
	if !r.Allows(id) {
		return false
	}
	if deliver != nil {
		deliver()
	}
	return true
}
