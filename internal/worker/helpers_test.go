package worker

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostctx"
	"github.com/parasim/parasim/internal/plugin"
	"github.com/parasim/parasim/internal/safetime"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
)

type fakeFacade struct {
	globals       plugin.Globals
	socketReadies []socketReadyCall
}

type socketReadyCall struct {
	sockd             int
	canRead, canWrite bool
	readFirst         bool
}

func (f *fakeFacade) Init() error { return nil }
func (f *fakeFacade) Instantiate(api plugin.GuestAPI, argc int, argv []string) error {
	return nil
}
func (f *fakeFacade) Destroy(api plugin.GuestAPI) {}
func (f *fakeFacade) SocketReady(api plugin.GuestAPI, sockd int, canRead, canWrite, readFirst bool) {
	f.socketReadies = append(f.socketReadies, socketReadyCall{sockd, canRead, canWrite, readFirst})
}
func (f *fakeFacade) LoadGlobals(g plugin.Globals) { f.globals = g }
func (f *fakeFacade) SaveGlobals() plugin.Globals  { return f.globals }

func noopLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestWorker builds a worker with no peers (so calc_window returns Max
// and every dispatchable event is always within window) and a no-op
// ExecOp hook, ready for BeginSimulating.
func newTestWorker(t *testing.T) (*Worker, *calendar.Calendar, *timer.Manager, *vepoll.Mux, *hostctx.Switcher, *hostctx.Services) {
	t.Helper()

	cal := calendar.New(calendar.DefaultConfig())
	timers := timer.New(cal)

	var w *Worker
	nowFn := func() vtime.Time {
		if w == nil {
			return 0
		}
		return w.CurrentTime()
	}
	vmux := vepoll.NewMux(cal, vepoll.DefaultConfig(), nowFn)
	switcher := hostctx.NewSwitcher()
	services := &hostctx.Services{
		Timers:  timers,
		Vepoll:  vmux,
		TimeSrc: vtime.NewSource(clockwork.NewFakeClock(), false),
		Now:     nowFn,
	}
	proto := safetime.New(vtime.Time(1), time.Hour)

	hooks := Hooks{
		ExecOp: func(id string, op event.Op) (bool, error) { return false, nil },
	}

	w = New("w1", cal, timers, vmux, switcher, services, proto, hooks, DefaultConfig(), noopLog())
	return w, cal, timers, vmux, switcher, services
}
