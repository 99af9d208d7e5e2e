// Package vepoll implements the I/O-readiness notification mux (C3): it
// collapses high-frequency buffer-state changes into at most one
// guest-visible "socket is ready" callback per socket until that callback
// fires.
package vepoll

import (
	"sync"

	"github.com/parasim/parasim/internal/event"
)

// Mask is a bitset of readiness directions.
type Mask uint8

const (
	R Mask = 1 << iota
	W
)

func (m Mask) has(bit Mask) bool { return m&bit != 0 }

// State toggles whether a record's notifications are delivered at all.
type State int

const (
	Active State = iota
	Inactive
)

// Notifier invokes the guest's socket_ready entry point. The worker
// supplies an implementation that performs the host-context swap around
// the call (§4.4); vepoll itself never touches host globals.
type Notifier func(host event.HostID, sockd int, canRead, canWrite, readFirst bool)

// Record is the per-socket readiness tracker described in §4.3. Exactly
// one of its methods runs at a time in practice (the owning worker is
// single-threaded), but the mutex makes that an enforced invariant rather
// than an assumption.
//
// onActivate is invoked (outside the lock) exactly when a notification
// transitions from idle to scheduled; the owning Mux uses it to insert the
// corresponding Notify event into the calendar at the current virtual
// time. Record itself holds no calendar or clock reference, keeping it
// unit-testable in isolation.
type Record struct {
	mu sync.Mutex

	Host  event.HostID
	SockD int

	available Mask
	polling   Mask
	state     State

	notifyScheduled  bool
	executing        bool
	cancelAndDestroy bool
	doReadFirst      bool

	onActivate func()
}

// NewRecord creates a Record in the Active state with no pending
// notification. onActivate is called whenever the record needs a readiness
// event scheduled.
func NewRecord(host event.HostID, sockd int, onActivate func()) *Record {
	return &Record{
		Host:        host,
		SockD:       sockd,
		state:       Active,
		doReadFirst: true,
		onActivate:  onActivate,
	}
}

// MarkAvailable sets bits in the available mask and activates.
func (r *Record) MarkAvailable(t Mask) {
	r.mu.Lock()
	r.available |= t
	r.mu.Unlock()
	r.activate()
}

// MarkUnavailable clears bits in the available mask. It deliberately does
// not cancel a pending notification — the handler re-checks availability
// when it fires.
func (r *Record) MarkUnavailable(t Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available &^= t
}

// MarkActive/MarkInactive toggle whether notifications are delivered at
// all. Going Inactive masks all notifications; it does not cancel one
// already scheduled (execute_notification checks state again on firing).
func (r *Record) MarkActive() {
	r.mu.Lock()
	r.state = Active
	r.mu.Unlock()
	r.activate()
}

func (r *Record) MarkInactive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Inactive
}

// VeventAdd registers guest interest in t and activates.
func (r *Record) VeventAdd(t Mask) {
	r.mu.Lock()
	r.polling |= t
	r.mu.Unlock()
	r.activate()
}

// VeventDelete removes guest interest in t.
func (r *Record) VeventDelete(t Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polling &^= t
}

// Available reports the current availability mask (read-only observers,
// e.g. socket_is_readable/socket_is_writable in the guest API).
func (r *Record) Available() Mask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// activate schedules exactly one readiness event if the record is Active
// and no notification is already pending (invariant I3): concurrent
// activations coalesce into the single already-pending notification.
func (r *Record) activate() {
	r.mu.Lock()
	schedule := r.activateLocked()
	r.mu.Unlock()
	if schedule && r.onActivate != nil {
		r.onActivate()
	}
}

func (r *Record) activateLocked() (schedule bool) {
	if r.state != Active || r.notifyScheduled {
		return false
	}
	r.notifyScheduled = true
	return true
}

// Destroy frees the record, unless a notification is scheduled or
// executing, in which case the free is deferred until that notification's
// trailing edge (cancel_and_destroy). The caller must stop using the
// record's Mux-side resources only once freedNow is true or a later
// ExecuteNotification call reports the deferred destroy.
func (r *Record) Destroy() (freedNow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.notifyScheduled || r.executing {
		r.cancelAndDestroy = true
		return false
	}
	return true
}

// ExecuteNotification is the handler for a scheduled readiness event. It
// clears notifyScheduled, honors a deferred destroy, and otherwise invokes
// notify exactly once with the current available mask, alternating which
// direction is reported "first" across firings when both are available
// (read/write fairness). It returns true if a deferred Destroy() should now
// take effect.
func (r *Record) ExecuteNotification(notify Notifier) (deferredDestroy bool) {
	r.mu.Lock()
	r.notifyScheduled = false

	if r.cancelAndDestroy {
		r.mu.Unlock()
		return true
	}
	if r.state != Active {
		r.mu.Unlock()
		return false
	}

	r.executing = true
	readFirst := r.doReadFirst
	mask := r.available & (R | W)
	if mask.has(R) && mask.has(W) {
		r.doReadFirst = !r.doReadFirst
	}
	host, sockd := r.Host, r.SockD
	r.mu.Unlock()

	notify(host, sockd, mask.has(R), mask.has(W), readFirst)

	r.mu.Lock()
	r.executing = false
	reactivate := !r.cancelAndDestroy && r.polling&r.available != 0
	if reactivate {
		reactivate = r.activateLocked()
	}
	deferredDestroy = r.cancelAndDestroy
	r.mu.Unlock()

	if reactivate && r.onActivate != nil {
		r.onActivate()
	}
	return deferredDestroy
}
