// Package calendar implements the event calendar (C1): a priority-ordered
// multimap of virtual time to a FIFO queue of events due at that time.
package calendar

import (
	"container/heap"
	"container/list"
	"sync"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/vtime"
)

// Config exposes the bucket granularity knob named in the configuration
// surface (event_tracker_granularity). A granularity of 0 or 1 gives exact
// per-timestamp buckets (the default, and the only setting under which
// invariant I1 — monotone dispatch — holds precisely). A coarser
// granularity trades ordering precision for fewer heap entries, matching
// "bucketed structure acceptable if bucket granularity is exposed as
// config".
type Config struct {
	Granularity vtime.Time
}

// DefaultConfig returns exact, ungrouped buckets.
func DefaultConfig() Config {
	return Config{Granularity: 1}
}

type bucket struct {
	key    vtime.Time
	events *list.List
	index  int // position in the heap, maintained by container/heap
}

type bucketHeap []*bucket

func (h bucketHeap) Len() int            { return len(h) }
func (h bucketHeap) Less(i, j int) bool  { return h[i].key < h[j].key }
func (h bucketHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *bucketHeap) Push(x interface{}) {
	b := x.(*bucket)
	b.index = len(*h)
	*h = append(*h, b)
}
func (h *bucketHeap) Pop() interface{} {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return b
}

// Calendar is safe for concurrent use, though in practice a single worker
// owns its calendar and accesses it from one goroutine only (§5).
type Calendar struct {
	mu     sync.Mutex
	cfg    Config
	byKey  map[vtime.Time]*bucket
	heap   bucketHeap
	length int
}

// New creates an empty calendar with the given bucket granularity.
func New(cfg Config) *Calendar {
	if cfg.Granularity == 0 {
		cfg.Granularity = 1
	}
	return &Calendar{
		cfg:   cfg,
		byKey: make(map[vtime.Time]*bucket),
	}
}

func (c *Calendar) bucketKey(at vtime.Time) vtime.Time {
	if c.cfg.Granularity <= 1 {
		return at
	}
	return (at / c.cfg.Granularity) * c.cfg.Granularity
}

// Insert adds ev (whose At must equal at) to the calendar. Ties at the same
// key chain in insertion order.
func (c *Calendar) Insert(at vtime.Time, ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.bucketKey(at)
	b, ok := c.byKey[key]
	if !ok {
		b = &bucket{key: key, events: list.New()}
		c.byKey[key] = b
		heap.Push(&c.heap, b)
	}
	b.events.PushBack(ev)
	c.length++
}

// PeekMinTime returns the key of the earliest non-empty bucket (the
// earliest event's time rounded down to Granularity; the exact time when
// Granularity is 1), or vtime.Invalid if the calendar is empty.
func (c *Calendar) PeekMinTime() vtime.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.heap) == 0 {
		return vtime.Invalid
	}
	return c.heap[0].key
}

// PopMin removes and returns the earliest event (FIFO within its bucket).
// ok is false if the calendar is empty.
func (c *Calendar) PopMin() (ev event.Event, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.heap) == 0 {
		return event.Event{}, false
	}
	b := c.heap[0]
	front := b.events.Front()
	ev = front.Value.(event.Event)
	b.events.Remove(front)
	c.length--
	if b.events.Len() == 0 {
		heap.Pop(&c.heap)
		delete(c.byKey, b.key)
	}
	return ev, true
}

// Size returns the number of pending events.
func (c *Calendar) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}
