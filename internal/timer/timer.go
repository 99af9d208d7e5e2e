// Package timer implements the per-host timer manager (C2): one-shot
// timers scheduled into the event calendar, cancellable via a validity
// flag rather than removal from the calendar (the event still fires; the
// handler no-ops).
package timer

import (
	"errors"
	"sync"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/vtime"
)

// ErrNonPositiveDelay is returned by Create when delay <= 0, enforcing
// invariant I4 (timer monotonicity: expire = now + delay, delay > 0).
var ErrNonPositiveDelay = errors.New("timer: delay must be greater than 0")

// Callback is invoked by the worker loop's Timer-event handler once the
// host context has been swapped in, matching §4.2's execution contract.
type Callback func(tid uint32, arg any)

// Item is a single scheduled timer. Cancellation sets Valid=false; the item
// is never removed from the calendar, only marked.
type Item struct {
	ID       uint32
	Expire   vtime.Time
	Host     event.HostID
	Callback Callback
	Arg      any
	valid    bool
}

// Valid reports whether the timer is still live (not cancelled).
func (it *Item) Valid() bool { return it.valid }

// Manager owns the per-host table of live timer items and the
// monotonically increasing tid allocator.
type Manager struct {
	mu     sync.Mutex
	cal    *calendar.Calendar
	nextID map[event.HostID]uint32
	items  map[event.HostID]map[uint32]*Item
}

// New creates a timer manager scheduling into cal.
func New(cal *calendar.Calendar) *Manager {
	return &Manager{
		cal:    cal,
		nextID: make(map[event.HostID]uint32),
		items:  make(map[event.HostID]map[uint32]*Item),
	}
}

// Create allocates a new timer for host, firing cb(tid, arg) at now+delay,
// and pushes the corresponding Timer event into the calendar.
func (m *Manager) Create(host event.HostID, now, delay vtime.Time, cb Callback, arg any) (uint32, error) {
	if delay == 0 || delay == vtime.Invalid {
		return 0, ErrNonPositiveDelay
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tid := m.nextID[host] + 1
	m.nextID[host] = tid

	table, ok := m.items[host]
	if !ok {
		table = make(map[uint32]*Item)
		m.items[host] = table
	}

	expire := now.Add(delay)
	item := &Item{
		ID:       tid,
		Expire:   expire,
		Host:     host,
		Callback: cb,
		Arg:      arg,
		valid:    true,
	}
	table[tid] = item

	m.cal.Insert(expire, event.Event{
		At:    expire,
		Kind:  event.KindTimer,
		Timer: &event.TimerPayload{Host: host, TimerID: tid},
	})

	return tid, nil
}

// Cancel invalidates tid for host. Cancelling an unknown or already
// cancelled timer is a no-op (P4: idempotent).
func (m *Manager) Cancel(host event.HostID, tid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.items[host]
	if !ok {
		return
	}
	if it, ok := table[tid]; ok {
		it.valid = false
	}
}

// CancelAll invalidates every live timer for host, used on host
// destruction so in-flight timer events become no-ops (P5).
func (m *Manager) CancelAll(host event.HostID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.items[host]
	if !ok {
		return
	}
	for _, it := range table {
		it.valid = false
	}
}

// Consume removes and returns the item for (host, tid), regardless of its
// validity; the caller (the worker's Timer-event handler) checks Valid()
// before invoking the callback. The item is always freed after firing,
// matching §4.2: "Always free the item."
func (m *Manager) Consume(host event.HostID, tid uint32) (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.items[host]
	if !ok {
		return nil, false
	}
	it, ok := table[tid]
	if !ok {
		return nil, false
	}
	delete(table, tid)
	return it, true
}
