package vepoll

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/vtime"
)

// sockKey identifies a socket across all hosts hosted by one worker.
type sockKey struct {
	host  event.HostID
	sockd int
}

// Config bounds the poll-tick safety net: a periodic check, independent
// of state-transition notifications, that guarantees liveness even if a
// mark_available call was missed (§4.3, "auxiliary safety net, not a
// correctness requirement").
type Config struct {
	PollDelay vtime.Time
}

// DefaultConfig schedules a safety-net check every 1s. The Mux hands
// PollDelay to its TTL cache as a time.Duration, so the interval is
// measured on the wall clock, not in virtual time.
func DefaultConfig() Config {
	return Config{PollDelay: vtime.Time(time.Second)}
}

// Mux owns every vepoll Record hosted by one worker, schedules their
// readiness events into the shared calendar, and runs the POLL_DELAY
// safety net via a TTL cache: each record's entry is set on Open and again
// after each eviction (record activity does not refresh it), so every
// PollDelay of wall-clock time the Mux re-activates the record
// defensively.
type Mux struct {
	mu      sync.Mutex
	cal     *calendar.Calendar
	cfg     Config
	now     func() vtime.Time
	records map[sockKey]*Record

	safetyNet *ttlcache.Cache[sockKey, struct{}]
}

// NewMux creates a Mux scheduling readiness events into cal. now must
// return the owning worker's current virtual time; it is read each time an
// event needs scheduling, never cached.
func NewMux(cal *calendar.Calendar, cfg Config, now func() vtime.Time) *Mux {
	m := &Mux{
		cal:     cal,
		cfg:     cfg,
		now:     now,
		records: make(map[sockKey]*Record),
	}
	m.safetyNet = ttlcache.New(
		ttlcache.WithTTL[sockKey, struct{}](time.Duration(cfg.PollDelay)),
	)
	m.safetyNet.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[sockKey, struct{}]) {
		m.mu.Lock()
		rec, ok := m.records[item.Key()]
		m.mu.Unlock()
		if !ok {
			return
		}
		rec.activate()
		m.safetyNet.Set(item.Key(), struct{}{}, time.Duration(m.cfg.PollDelay))
	})
	go m.safetyNet.Start()
	return m
}

// Close stops the safety-net cleanup goroutine.
func (m *Mux) Close() {
	m.safetyNet.Stop()
}

// Open registers a new socket and returns its Record.
func (m *Mux) Open(host event.HostID, sockd int) *Record {
	key := sockKey{host, sockd}
	rec := NewRecord(host, sockd, func() { m.schedule(key) })

	m.mu.Lock()
	m.records[key] = rec
	m.mu.Unlock()

	m.safetyNet.Set(key, struct{}{}, time.Duration(m.cfg.PollDelay))
	return rec
}

// CloseSocket closes a single socket's record, deferring the free if a
// notification is scheduled or in flight (Dispatch forgets the record
// once ExecuteNotification reports deferredDestroy).
func (m *Mux) CloseSocket(host event.HostID, sockd int) {
	key := sockKey{host, sockd}
	m.mu.Lock()
	rec, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	if rec.Destroy() {
		m.forget(key)
	}
}

// CloseHost closes every socket currently open for host, as when a host is
// destroyed (§5, "Host state owns sockets"): each one goes through the same
// deferred-if-in-flight Destroy path as an individually closed socket.
func (m *Mux) CloseHost(host event.HostID) {
	m.mu.Lock()
	var keys []sockKey
	for key := range m.records {
		if key.host == host {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.CloseSocket(key.host, key.sockd)
	}
}

func (m *Mux) forget(key sockKey) {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	m.safetyNet.Delete(key)
}

// Lookup returns the record for (host, sockd), if any.
func (m *Mux) Lookup(host event.HostID, sockd int) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sockKey{host, sockd}]
	return rec, ok
}

// schedule inserts a single Notify event for key at the current virtual
// time (invariant I3: at most one such event per socket is ever pending,
// enforced by Record.activate before this is called).
func (m *Mux) schedule(key sockKey) {
	at := m.now()
	m.cal.Insert(at, event.Event{
		At:     at,
		Kind:   event.KindNotify,
		Notify: &event.NotifyPayload{Host: key.host, SockD: key.sockd},
	})
}

// Dispatch is the worker's handler for a Notify event: it looks up the
// record and runs its notification, forgetting the record if a Destroy
// had been deferred.
func (m *Mux) Dispatch(host event.HostID, sockd int, notify Notifier) {
	key := sockKey{host, sockd}
	m.mu.Lock()
	rec, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	if rec.ExecuteNotification(notify) {
		m.forget(key)
	}
}
