// Package echoplugin is a minimal reference plug-in: on instantiation it
// arms a self-rescheduling timer that logs a tick every delay_ms, enough
// to exercise create_timer/destroy_timer and the per-host globals swap
// (LoadGlobals/SaveGlobals) end to end
// without implementing an actual network stack (out of the core's scope,
// spec.md §1 Non-goals).
package echoplugin

import (
	"log/slog"

	"github.com/parasim/parasim/internal/plugin"
	"github.com/parasim/parasim/internal/vtime"
)

const Name = "echo"

type globals struct {
	ticks int
	timer uint32
}

// Plugin implements plugin.Facade.
type Plugin struct {
	log     *slog.Logger
	delay   vtime.Time
	globals globals
}

// New returns a plugin.Factory registering Plugin under echoplugin.Name.
func New(log *slog.Logger, delay vtime.Time) plugin.Factory {
	return func() plugin.Facade {
		return &Plugin{log: log, delay: delay}
	}
}

func (p *Plugin) Init() error { return nil }

func (p *Plugin) Instantiate(api plugin.GuestAPI, argc int, argv []string) error {
	p.arm(api)
	return nil
}

func (p *Plugin) arm(api plugin.GuestAPI) {
	tid, err := api.CreateTimer(p.delay, p.onTick, nil)
	if err != nil {
		p.log.Error("echoplugin: failed to arm timer", "err", err)
		return
	}
	p.globals.timer = tid
}

func (p *Plugin) onTick(api plugin.GuestAPI, tid uint32, arg any) {
	p.globals.ticks++
	p.log.Debug("echoplugin: tick", "host", api.HostID(), "count", p.globals.ticks)
	p.arm(api)
}

func (p *Plugin) Destroy(api plugin.GuestAPI) {
	if p.globals.timer != 0 {
		api.DestroyTimer(p.globals.timer)
	}
}

func (p *Plugin) SocketReady(api plugin.GuestAPI, sockd int, canRead, canWrite, readFirst bool) {
	p.log.Debug("echoplugin: socket ready", "host", api.HostID(), "sockd", sockd, "canRead", canRead, "canWrite", canWrite)
}

func (p *Plugin) LoadGlobals(g plugin.Globals) {
	if gl, ok := g.(globals); ok {
		p.globals = gl
	}
}

func (p *Plugin) SaveGlobals() plugin.Globals { return p.globals }

var _ plugin.Facade = (*Plugin)(nil)
