// Command worker runs a slave process: it dials the master's relay,
// hosts a pool of workers (C5), and fans incoming ops out to them per
// spec.md §4.7.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/parasim/parasim/internal/bus"
	"github.com/parasim/parasim/internal/bus/grpcbus"
	"github.com/parasim/parasim/internal/bwsched"
	"github.com/parasim/parasim/internal/calendar"
	"github.com/parasim/parasim/internal/config"
	"github.com/parasim/parasim/internal/coordinator"
	"github.com/parasim/parasim/internal/echoplugin"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/hostctx"
	"github.com/parasim/parasim/internal/logging"
	"github.com/parasim/parasim/internal/metrics"
	"github.com/parasim/parasim/internal/plugin"
	"github.com/parasim/parasim/internal/resolver"
	"github.com/parasim/parasim/internal/safetime"
	"github.com/parasim/parasim/internal/timer"
	"github.com/parasim/parasim/internal/vepoll"
	"github.com/parasim/parasim/internal/vtime"
	"github.com/parasim/parasim/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	slaveIDFlag := flag.String("slave-id", "", "this slave's ID, used as its bus identity (required)")
	masterAddrFlag := flag.String("master-addr", "127.0.0.1:7000", "address of the master's relay server")
	numWorkersFlag := flag.Int("num-workers", 1, "number of worker goroutines hosted by this slave")
	metricsAddrFlag := flag.String("metrics-addr", ":8081", "address for the prometheus metrics server")
	verboseFlag := flag.Bool("verbose", false, "enable debug logging")
	tickFlag := flag.Duration("tick", 5*time.Millisecond, "poll interval when a worker has nothing to dispatch")

	eventTrackerSizeFlag := flag.Int("event_tracker_size", 0, "calendar pre-sizing hint (0: unbounded)")
	eventTrackerGranularityFlag := flag.Uint64("event_tracker_granularity", 1, "calendar bucket width, in ns")
	dtimerHashsizeFlag := flag.Int("dtimer_tset_hashsize", 64, "per-host timer set initial hash size")
	dtimerHashgrowthFlag := flag.Float64("dtimer_tset_hashgrowth", 2.0, "per-host timer set hash growth factor")
	useWallclockOffsetFlag := flag.Bool("use_wallclock_startup_time_offset", false, "report gettime() as an offset from wall-clock startup time")
	runaheadFloorFlag := flag.Int("RUNAHEAD_FLOOR_MS", 0, "minimum enforced safe-time window, in ms")

	flag.Parse()

	log := logging.New(*verboseFlag)

	if *slaveIDFlag == "" {
		return fmt.Errorf("worker: --slave-id is required")
	}
	if *numWorkersFlag <= 0 {
		return fmt.Errorf("worker: --num-workers must be > 0")
	}

	cfg := config.Default()
	cfg.EventTrackerSize = *eventTrackerSizeFlag
	cfg.EventTrackerGranularity = vtime.Time(*eventTrackerGranularityFlag)
	cfg.DTimerTsetHashsize = *dtimerHashsizeFlag
	cfg.DTimerTsetHashgrowth = *dtimerHashgrowthFlag
	cfg.UseWallclockStartupTimeOffset = *useWallclockOffsetFlag
	cfg.RunaheadFloorMS = *runaheadFloorFlag
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			log.Info("worker: starting prometheus metrics server", "address", *metricsAddrFlag)
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddrFlag, nil); err != nil {
				log.Error("worker: prometheus metrics server stopped", "err", err)
			}
		}()
	}

	client, err := grpcbus.Dial(ctx, *masterAddrFlag, *slaveIDFlag, log)
	if err != nil {
		return fmt.Errorf("worker: dial master: %w", err)
	}
	defer client.Close()

	start, err := awaitStart(ctx, client)
	if err != nil {
		return fmt.Errorf("worker: awaiting start frame: %w", err)
	}
	minLatency := vtime.Time(start.MinLatency)
	log.Info("worker: received start frame", "min_latency_ns", start.MinLatency, "max_latency_ns", start.MaxLatency)

	registry := plugin.NewRegistry()
	registry.Register(echoplugin.Name, echoplugin.New(log, vtime.Time(time.Second)))

	slave := coordinator.NewSlave(*slaveIDFlag, *numWorkersFlag, log)
	initialized := make(map[string]bool)

	wired := make([]*wiredWorker, 0, *numWorkersFlag)
	for i := 0; i < *numWorkersFlag; i++ {
		id := fmt.Sprintf("%s/w%d", *slaveIDFlag, i)
		ww := newWiredWorker(id, minLatency, cfg, registry, initialized, log)
		slave.AddWorker(id, ww.w)
		wired = append(wired, ww)
	}

	slave.OnDoneSlave = func() {
		log.Info("worker: all local workers complete, reporting done to master")
		if sendErr := client.Send(ctx, "master", bus.Frame{
			Type:      bus.FrameDoneSlave,
			SrcWorker: *slaveIDFlag,
			DoneSlave: &bus.DoneSlaveFrame{},
		}); sendErr != nil {
			log.Error("worker: failed to report done", "err", sendErr)
		}
	}

	go recvLoop(ctx, client, slave, wired, log)

	slave.Start(ctx, *tickFlag)
	<-ctx.Done()
	slave.Wait()
	return nil
}

func awaitStart(ctx context.Context, client *grpcbus.Client) (*bus.StartFrame, error) {
	for {
		f, err := client.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if f.Type == bus.FrameStart && f.Start != nil {
			return f.Start, nil
		}
	}
}

// wiredWorker bundles one worker with the Track-fed collaborators that
// live alongside it but outside the GuestAPI surface: its own resolver
// (name/address/min-bandwidth table) and bandwidth scheduler, both
// populated from Track frames relayed by the slave's recvLoop.
type wiredWorker struct {
	w   *worker.Worker
	res *resolver.Resolver
	bws *bwsched.Scheduler
}

// newWiredWorker builds one fully-wired Worker (C1-C6) plus the ExecOp
// hook that turns CreateNode/EndOp ops into host creation and worker
// completion, per spec.md §4.7.
func newWiredWorker(id string, minLatency vtime.Time, cfg config.Config, registry *plugin.Registry, initialized map[string]bool, log *slog.Logger) *wiredWorker {
	if floor := cfg.RunaheadFloor(); minLatency < floor {
		minLatency = floor
	}
	cal := calendar.New(cfg.CalendarConfig())
	timers := timer.New(cal)

	var w *worker.Worker
	nowFn := func() vtime.Time {
		if w == nil {
			return 0
		}
		return w.CurrentTime()
	}
	vmux := vepoll.NewMux(cal, cfg.VepollConfig(), nowFn)
	switcher := hostctx.NewSwitcher()
	res := resolver.New()
	bws := bwsched.New()
	services := &hostctx.Services{
		Timers:   timers,
		Vepoll:   vmux,
		Resolver: res,
		TimeSrc:  vtime.NewSource(clockwork.NewRealClock(), cfg.UseWallclockStartupTimeOffset),
		Now:      nowFn,
	}
	proto := safetime.New(minLatency, time.Minute)

	hooks := worker.Hooks{
		ExecOp: func(opID string, op event.Op) (bool, error) {
			switch o := op.(type) {
			case coordinator.CreateNode:
				return false, execCreateNode(w, switcher, services, registry, initialized, o, log)
			case coordinator.EndOp:
				w.Complete()
				return false, nil
			default:
				log.Warn("worker: dropping unrecognized op", "kind", op.OpKind())
				return false, nil
			}
		},
	}

	w = worker.New(id, cal, timers, vmux, switcher, services, proto, hooks, cfg.WorkerConfig(), log)
	return &wiredWorker{w: w, res: res, bws: bws}
}

func execCreateNode(w *worker.Worker, switcher *hostctx.Switcher, services *hostctx.Services, registry *plugin.Registry, initialized map[string]bool, op coordinator.CreateNode, log *slog.Logger) error {
	facade, err := registry.New(op.Plugin)
	if err != nil {
		return err
	}
	if !initialized[op.Plugin] {
		if err := facade.Init(); err != nil {
			return err
		}
		initialized[op.Plugin] = true
	}

	host := hostctx.NewHost(event.HostID(op.NodeID), op.NodeID, facade, log)
	w.AddHost(host)

	var instErr error
	switcher.Invoke(host, services, func(api *hostctx.GuestAPI) {
		instErr = facade.Instantiate(api, len(op.Args), op.Args)
	})
	return instErr
}

func recvLoop(ctx context.Context, client *grpcbus.Client, slave *coordinator.Slave, wired []*wiredWorker, log *slog.Logger) {
	for {
		f, err := client.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("worker: recv failed", "err", err)
			return
		}
		switch f.Type {
		case bus.FrameOp:
			op, err := coordinator.DecodeOp(f.Op.Encoded)
			if err != nil {
				log.Error("worker: failed to decode op", "err", err)
				continue
			}
			if err := slave.DispatchOp(f.Op.ID, op); err != nil {
				log.Error("worker: failed to dispatch op", "err", err)
			}
		case bus.FrameTrack:
			applyTrack(wired, f.Track, log)
		}
	}
}

// applyTrack feeds a Track frame into every local worker's resolver and
// bandwidth scheduler: each worker owns its own copy of both (§4.9), so a
// slave with multiple workers must fan the same fact out to all of them.
func applyTrack(wired []*wiredWorker, t *bus.TrackFrame, log *slog.Logger) {
	if t == nil {
		return
	}
	linkID := fmt.Sprintf("%d", t.NetworkID)
	for _, ww := range wired {
		ww.res.Track(t.Addr, t.Hostname, t.KbpsUp, t.KbpsDown)
		ww.bws.Track(linkID, ww.w.CurrentTime(), t.KbpsUp, t.KbpsDown)
	}
	log.Debug("worker: track frame applied", "host", t.Hostname, "addr", t.Addr, "network_id", t.NetworkID)
}
