// Package hostctx implements the host context-switching discipline (C4):
// a single worker-owned "current host" slot, swap-in/swap-out of
// per-host plug-in globals, and an escape continuation standing in for
// the source implementation's setjmp/longjmp unwind on guest exit().
package hostctx

import (
	"log/slog"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/plugin"
)

// Host is a single simulated network endpoint: a plug-in instance plus the
// bookkeeping the worker needs to run it. A Host is owned by exactly one
// worker for its entire lifetime.
type Host struct {
	ID      event.HostID
	Address string
	Facade  plugin.Facade
	Log     *slog.Logger

	globals   plugin.Globals
	destroyed bool
}

// NewHost creates a host bound to facade, with no globals loaded yet —
// Instantiate (via Switcher.Invoke) populates them through
// register_globals.
func NewHost(id event.HostID, address string, facade plugin.Facade, log *slog.Logger) *Host {
	return &Host{ID: id, Address: address, Facade: facade, Log: log}
}

// Destroyed reports whether exit() has unwound this host already.
func (h *Host) Destroyed() bool { return h.destroyed }

// exitSignal is the sentinel panic value used to unwind from arbitrary
// guest call depth back to the dispatch loop, replacing the source
// implementation's non-local setjmp/longjmp exit (Design Note 1). It is
// never allowed to escape Switcher.Invoke.
type exitSignal struct {
	host event.HostID
}

// Switcher is the single thread-local "current host" slot, scoped to one
// worker goroutine (never a process-wide global). It tracks which host's
// globals are currently resident so that re-entrant calls for the same
// host skip a redundant swap.
type Switcher struct {
	current *Host // borrowed reference to the host whose guest code is running, nil when idle
	loaded  event.HostID
	hasLoad bool
}

// NewSwitcher creates an empty (no host loaded) switcher.
func NewSwitcher() *Switcher {
	return &Switcher{}
}

// Current returns the host whose guest code is presently executing, or nil.
func (s *Switcher) Current() *Host { return s.current }

// Invoke runs fn with h loaded as the current host and a GuestAPI wired to
// svc, per invariant I5: globals are swapped in before fn runs and saved
// back after, unless fn called Exit() on h, in which case globals are
// never saved (the host no longer exists) and exited is reported true.
func (s *Switcher) Invoke(h *Host, svc *Services, fn func(api *GuestAPI)) (exited bool) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(exitSignal)
			if !ok || sig.host != h.ID {
				panic(r)
			}
			exited = true
			s.current = nil
		}
	}()

	s.load(h)
	api := &GuestAPI{host: h, switcher: s, services: svc}
	fn(api)
	s.save(h)
	return false
}

// load swaps h's plug-in globals in if a different host's globals are
// currently resident; same-host re-entrancy skips the swap entirely.
func (s *Switcher) load(h *Host) {
	if s.hasLoad && s.loaded == h.ID {
		s.current = h
		return
	}
	h.Facade.LoadGlobals(h.globals)
	s.current = h
	s.loaded = h.ID
	s.hasLoad = true
}

// save writes h's globals back and clears the current-host slot, unless h
// was destroyed mid-call (I5: "unless the handler's host was destroyed").
func (s *Switcher) save(h *Host) {
	if !h.destroyed {
		h.globals = h.Facade.SaveGlobals()
	}
	s.current = nil
}

// destroy marks h destroyed and, if h is the currently loaded host,
// unwinds via the escape continuation so Invoke's deferred recover can
// finish cleanup without writing globals back.
func (s *Switcher) destroy(h *Host) {
	h.destroyed = true
	if s.current == h {
		panic(exitSignal{host: h.ID})
	}
}
