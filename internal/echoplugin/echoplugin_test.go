package echoplugin

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/hostctx"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
)

func TestPlugin_InstantiateArmsATimer(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cal := calendar.New(calendar.DefaultConfig())
	timers := timer.New(cal)
	vmux := vepoll.NewMux(cal, vepoll.DefaultConfig(), func() vtime.Time { return 0 })
	switcher := hostctx.NewSwitcher()
	services := &hostctx.Services{
		Timers:  timers,
		Vepoll:  vmux,
		TimeSrc: vtime.NewSource(clockwork.NewFakeClock(), false),
		Now:     func() vtime.Time { return 0 },
	}

	p := New(log, vtime.Time(time.Second))()
	host := hostctx.NewHost("h1", "10.0.0.1", p, log)

	switcher.Invoke(host, services, func(api *hostctx.GuestAPI) {
		require.NoError(t, p.Instantiate(api, 0, nil))
	})

	require.Equal(t, 1, cal.Size())
}

func TestPlugin_TickReArmsAndCountsUp(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cal := calendar.New(calendar.DefaultConfig())
	timers := timer.New(cal)
	vmux := vepoll.NewMux(cal, vepoll.DefaultConfig(), func() vtime.Time { return 0 })
	switcher := hostctx.NewSwitcher()
	services := &hostctx.Services{
		Timers:  timers,
		Vepoll:  vmux,
		TimeSrc: vtime.NewSource(clockwork.NewFakeClock(), false),
		Now:     func() vtime.Time { return 0 },
	}

	pl := New(log, vtime.Time(10))().(*Plugin)
	host := hostctx.NewHost("h1", "10.0.0.1", pl, log)

	switcher.Invoke(host, services, func(api *hostctx.GuestAPI) {
		require.NoError(t, pl.Instantiate(api, 0, nil))
	})

	ev, ok := cal.PopMin()
	require.True(t, ok)
	item, ok := timers.Consume(host.ID, ev.Timer.TimerID)
	require.True(t, ok)
	require.True(t, item.Valid())

	switcher.Invoke(host, services, func(api *hostctx.GuestAPI) {
		item.Callback(item.ID, item.Arg)
	})

	require.Equal(t, 1, pl.globals.ticks)
	require.Equal(t, 1, cal.Size())
}
