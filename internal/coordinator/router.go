package coordinator

import (
	"sync"

	"github.com/parasim/parasim/internal/event"
)

// Router implements §4.7's per-slave worker-turn dispatch: CreateNode ops
// land on exactly one destination, round-robin across calls; every other
// op kind broadcasts to all of them. The same shape applies one level up
// (the master routing ops to slaves), so Router is shared by both.
type Router struct {
	mu           sync.Mutex
	destinations []string
	next         int
}

// NewRouter creates a router over the given destination IDs, in the
// order they should receive round-robin placements.
func NewRouter(destinations []string) *Router {
	return &Router{destinations: append([]string(nil), destinations...)}
}

// Add registers a new destination, appended to the round-robin order.
func (r *Router) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations = append(r.destinations, id)
}

// Remove drops a destination, e.g. once it has reported done.
func (r *Router) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.destinations {
		if d == id {
			r.destinations = append(r.destinations[:i], r.destinations[i+1:]...)
			return
		}
	}
}

// Route decides where op goes: a single destination for CreateNode
// (advancing the round-robin cursor), or broadcast=true for everything
// else.
func (r *Router) Route(op event.Op) (dest string, broadcast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if op.OpKind() != OpKindCreateNode {
		return "", true
	}
	if len(r.destinations) == 0 {
		return "", false
	}
	dest = r.destinations[r.next%len(r.destinations)]
	r.next++
	return dest, false
}

// Destinations returns a snapshot of the current destination list, used
// by callers implementing broadcast.
func (r *Router) Destinations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.destinations...)
}
