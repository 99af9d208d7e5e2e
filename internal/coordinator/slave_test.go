package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostctx"
	"github.com/parasim/parasim/internal/safetime"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
	"github.com/parasim/parasim/internal/worker"
)

func newTestWorker(t *testing.T, id string) *worker.Worker {
	t.Helper()

	cal := calendar.New(calendar.DefaultConfig())
	timers := timer.New(cal)

	var w *worker.Worker
	nowFn := func() vtime.Time {
		if w == nil {
			return 0
		}
		return w.CurrentTime()
	}
	vmux := vepoll.NewMux(cal, vepoll.DefaultConfig(), nowFn)
	services := &hostctx.Services{
		Timers:  timers,
		Vepoll:  vmux,
		TimeSrc: vtime.NewSource(clockwork.NewFakeClock(), false),
		Now:     nowFn,
	}
	proto := safetime.New(vtime.Time(1), time.Hour)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	hooks := worker.Hooks{
		ExecOp: func(id string, op event.Op) (bool, error) {
			if _, ok := op.(EndOp); ok {
				w.Complete()
			}
			return false, nil
		},
	}

	w = worker.New(id, cal, timers, vmux, hostctx.NewSwitcher(), services, proto, hooks, worker.DefaultConfig(), log)
	return w
}

func TestSlave_DispatchesCreateNodeRoundRobinAndAggregatesDone(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSlave("slave-1", 2, log)

	w1 := newTestWorker(t, "w1")
	w2 := newTestWorker(t, "w2")
	s.AddWorker("w1", w1)
	s.AddWorker("w2", w2)

	require.NoError(t, s.DispatchOp("op-1", CreateNode{NodeID: "n1"}))
	require.NoError(t, s.DispatchOp("op-2", CreateNode{NodeID: "n2"}))

	doneCh := make(chan struct{})
	s.OnDoneSlave = func() { close(doneCh) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.DispatchOp("end", EndOp{}))
	s.Start(ctx, 5*time.Millisecond)

	select {
	case <-doneCh:
	case <-ctx.Done():
		t.Fatal("slave never reported done")
	}
	s.Wait()
}
