package hostctx

import (
	"time"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/plugin"
	"github.com/parasim/parasim/internal/resolver"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
)

// Services bundles the per-worker collaborators a GuestAPI call needs to
// reach — the timer manager, the vepoll mux, the resolver, and the time
// source — so Switcher.Invoke can hand a fully wired GuestAPI to the
// caller without every guest entry point threading them through by hand.
type Services struct {
	Timers   *timer.Manager
	Vepoll   *vepoll.Mux
	Resolver *resolver.Resolver
	TimeSrc  *vtime.Source
	Now      func() vtime.Time
}

// GuestAPI is the per-call handle passed to guest entry points, exposing
// exactly the guest-facing call interface named in the specification:
// getip, gettime, create_timer/destroy_timer, resolve_*,
// socket_is_readable/writable, set_loopexit_fn, register_globals, exit.
type GuestAPI struct {
	host     *Host
	switcher *Switcher
	services *Services
	loopExit func()
}

// GetIP returns the calling host's address (getip()).
func (a *GuestAPI) GetIP() string { return a.host.Address }

// GetTime returns the current virtual time as a duration, honoring
// use_wallclock_startup_time_offset (gettime()).
func (a *GuestAPI) GetTime() time.Duration {
	now := a.services.Now()
	return a.services.TimeSrc.GetTime(now)
}

// CreateTimer schedules a one-shot timer for the calling host
// (create_timer(delay_ms, cb, arg)). cb receives a freshly bound GuestAPI
// each time it fires, since the one passed to Instantiate does not outlive
// that single call.
func (a *GuestAPI) CreateTimer(delay vtime.Time, cb func(api plugin.GuestAPI, tid uint32, arg any), arg any) (uint32, error) {
	host, switcher, services := a.host, a.switcher, a.services
	wrapped := func(tid uint32, arg any) {
		cb(&GuestAPI{host: host, switcher: switcher, services: services}, tid, arg)
	}
	return services.Timers.Create(host.ID, services.Now(), delay, wrapped, arg)
}

// DestroyTimer cancels tid (destroy_timer(tid)); idempotent per P4.
func (a *GuestAPI) DestroyTimer(tid uint32) {
	a.services.Timers.Cancel(a.host.ID, tid)
}

// ResolveName resolves a hostname to an address (resolve_name(name)).
func (a *GuestAPI) ResolveName(name string) (string, bool) {
	return a.services.Resolver.ResolveName(name)
}

// ResolveAddr resolves an address to a hostname (resolve_addr(addr)).
func (a *GuestAPI) ResolveAddr(addr string) (string, bool) {
	return a.services.Resolver.ResolveAddr(addr)
}

// ResolveMinBW resolves an address's minimum link bandwidth in kbps
// (resolve_minbw(addr)).
func (a *GuestAPI) ResolveMinBW(addr string) (uint64, bool) {
	return a.services.Resolver.ResolveMinBW(addr)
}

// SocketIsReadable/SocketIsWritable expose the current availability of a
// socket without waiting for the next readiness notification.
func (a *GuestAPI) SocketIsReadable(sockd int) bool {
	rec, ok := a.services.Vepoll.Lookup(a.host.ID, sockd)
	return ok && rec.Available()&vepoll.R != 0
}

func (a *GuestAPI) SocketIsWritable(sockd int) bool {
	rec, ok := a.services.Vepoll.Lookup(a.host.ID, sockd)
	return ok && rec.Available()&vepoll.W != 0
}

// SetLoopExitFn stores fn on this GuestAPI handle (set_loopexit_fn(fn)).
// Nothing in the worker reads or invokes the stored callback.
func (a *GuestAPI) SetLoopExitFn(fn func()) {
	a.loopExit = fn
}

// RegisterGlobals installs the plug-in's initial globals blob, normally
// called once from Init/Instantiate (register_globals(size, ptr)).
func (a *GuestAPI) RegisterGlobals(g plugin.Globals) {
	a.host.globals = g
}

// Exit unwinds the guest's call stack back to the dispatch loop and
// destroys the host: its timers are invalidated (so any already-scheduled
// Timer events become no-ops, P5) and its sockets are closed, but nothing
// else about its state is mutated afterward (I5).
func (a *GuestAPI) Exit() {
	a.services.Timers.CancelAll(a.host.ID)
	a.services.Vepoll.CloseHost(a.host.ID)
	a.switcher.destroy(a.host)
}

// HostID exposes the calling host's identifier, used by collaborators
// (transport, coordinator) that need to route on it without re-deriving
// it from the address.
func (a *GuestAPI) HostID() event.HostID { return a.host.ID }

var _ plugin.GuestAPI = (*GuestAPI)(nil)
