// Package plugin defines the facade the core uses to invoke guest
// application code, and the registry that resolves a named plug-in to an
// instance of that facade. The loading mechanism itself (dlopen or
// equivalent) is explicitly out of the core's scope per the governing
// specification; the registry here only indexes in-process factories.
package plugin

import (
	"fmt"
	"time"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/vtime"
)

// Globals is the opaque per-host state a plug-in asks the host context to
// swap in and out around every guest entry point (register_globals in the
// guest-facing interface). It stands in for the source implementation's
// thread-local globals blob.
type Globals any

// GuestAPI is the call-back surface a plug-in uses to reach the host
// context it is running under (getip, gettime, create_timer/destroy_timer,
// resolve_*, socket_is_readable/writable, set_loopexit_fn, exit). It is
// declared here, not in hostctx, so this package stays free of the
// hostctx -> plugin dependency hostctx already has; hostctx.GuestAPI is the
// concrete implementation passed to every call below.
type GuestAPI interface {
	GetIP() string
	GetTime() time.Duration
	CreateTimer(delay vtime.Time, cb func(api GuestAPI, tid uint32, arg any), arg any) (uint32, error)
	DestroyTimer(tid uint32)
	ResolveName(name string) (string, bool)
	ResolveAddr(addr string) (string, bool)
	ResolveMinBW(addr string) (uint64, bool)
	SocketIsReadable(sockd int) bool
	SocketIsWritable(sockd int) bool
	SetLoopExitFn(fn func())
	Exit()
	HostID() event.HostID
}

// Facade is implemented by every plug-in. Init is called once, in a
// static/process-wide context, before any host using this plug-in is
// instantiated. Instantiate/Destroy/SocketReady are per-host guest entry
// points, always invoked with this plug-in's Globals already loaded by the
// host context and a GuestAPI bound to the calling host.
type Facade interface {
	Init() error
	Instantiate(api GuestAPI, argc int, argv []string) error
	Destroy(api GuestAPI)
	SocketReady(api GuestAPI, sockd int, canRead, canWrite, readFirst bool)

	// LoadGlobals installs g as this plug-in instance's resident globals;
	// SaveGlobals returns the current globals for storage until the next
	// load. Both are called only by the host context's Switcher.
	LoadGlobals(g Globals)
	SaveGlobals() Globals
}

// Factory creates a fresh Facade instance for one host.
type Factory func() Facade

// Registry resolves a plug-in name to a Factory. It is the in-process
// stand-in for the out-of-scope plug-in loader.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Registering the same name twice replaces
// the previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New instantiates a fresh Facade for name.
func (r *Registry) New(name string) (Facade, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("plugin: no plug-in registered under name %q", name)
	}
	return f(), nil
}
