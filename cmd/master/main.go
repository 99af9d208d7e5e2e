// Command master runs the relay server and the run coordinator: it
// fans CreateNode/EndOp operations out to connected slave processes and
// aggregates their DoneSlave reports, per spec.md §4.7.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/parasim/parasim/internal/bus"
	"github.com/parasim/parasim/internal/bus/grpcbus"
	"github.com/parasim/parasim/internal/coordinator"
	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/logging"
	"github.com/parasim/parasim/internal/metrics"
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
	listenAddrFlag := flag.String("listen-addr", ":7000", "address for the slave relay to listen on")
	metricsAddrFlag := flag.String("metrics-addr", ":8080", "address for the prometheus metrics server")
	verboseFlag := flag.Bool("verbose", false, "enable debug logging")
	slavesFlag := flag.String("slaves", "", "comma-separated list of slave IDs expected to connect")
	opsFileFlag := flag.String("ops-file", "", "path to an ops script (default: stdin)")
	minLatencyMSFlag := flag.Uint64("min-latency-ms", 1, "topology-wide minimum link latency, in ms")
	maxLatencyMSFlag := flag.Uint64("max-latency-ms", 100, "topology-wide maximum link latency, in ms")
	flag.Parse()

	log := logging.New(*verboseFlag)

	slaveIDs := splitNonEmpty(*slavesFlag)
	if len(slaveIDs) == 0 {
		return fmt.Errorf("master: --slaves is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			log.Info("master: starting prometheus metrics server", "address", *metricsAddrFlag)
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddrFlag, nil); err != nil {
				log.Error("master: prometheus metrics server stopped", "err", err)
			}
		}()
	}

	srv := grpcbus.NewServer(log)
	lis, err := net.Listen("tcp", *listenAddrFlag)
	if err != nil {
		return fmt.Errorf("master: listen: %w", err)
	}
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error("master: relay server stopped", "err", err)
		}
	}()
	defer srv.Stop()
	log.Info("master: relay listening", "address", lis.Addr().String())

	selfClient, err := grpcbus.Dial(ctx, lis.Addr().String(), "master", log)
	if err != nil {
		return fmt.Errorf("master: dial self: %w", err)
	}
	defer selfClient.Close()

	coord := coordinator.NewMaster(log)
	for _, id := range slaveIDs {
		coord.AddSlave(id)
	}

	coord.Dispatch = func(slaveID, id string, op event.Op) error {
		encoded, err := coordinator.EncodeOp(op)
		if err != nil {
			return fmt.Errorf("master: encode op: %w", err)
		}
		return selfClient.Send(ctx, slaveID, bus.Frame{
			Type:      bus.FrameOp,
			SrcWorker: "master",
			Op:        &bus.OpFrame{ID: id, Encoded: encoded},
		})
	}

	runDone := make(chan struct{})
	coord.OnRunComplete = func() {
		log.Info("master: every slave reported done")
		close(runDone)
	}

	for _, id := range slaveIDs {
		if err := selfClient.Send(ctx, id, bus.Frame{
			Type:      bus.FrameStart,
			SrcWorker: "master",
			Start:     &bus.StartFrame{MinLatency: *minLatencyMSFlag * uint64(time.Millisecond), MaxLatency: *maxLatencyMSFlag * uint64(time.Millisecond)},
		}); err != nil {
			return fmt.Errorf("master: send start to %s: %w", id, err)
		}
	}

	go recvLoop(ctx, selfClient, coord, log)

	opsSrc, err := openOpsSource(*opsFileFlag)
	if err != nil {
		return fmt.Errorf("master: open ops source: %w", err)
	}
	defer opsSrc.Close()

	if err := runOpsScript(ctx, opsSrc, coord, selfClient, slaveIDs, log); err != nil {
		return fmt.Errorf("master: run ops script: %w", err)
	}

	select {
	case <-runDone:
	case <-ctx.Done():
		log.Info("master: context cancelled, stopping")
	}
	return nil
}

func recvLoop(ctx context.Context, c *grpcbus.Client, coord *coordinator.Master, log *slog.Logger) {
	for {
		f, err := c.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("master: recv failed", "err", err)
			return
		}
		switch f.Type {
		case bus.FrameDoneSlave:
			coord.ReportSlaveDone(f.SrcWorker)
		case bus.FrameTrack:
			log.Info("master: track", "slave", f.SrcWorker, "host", f.Track.Hostname, "addr", f.Track.Addr)
		case bus.FrameState:
			log.Debug("master: state", "slave", f.SrcWorker, "window", f.State.Window)
		case bus.FrameError:
			log.Error("master: slave reported error", "slave", f.SrcWorker, "message", f.Error.Message)
		}
	}
}

type opsSource struct {
	f *os.File
}

func (s *opsSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

func openOpsSource(path string) (*opsSource, error) {
	if path == "" {
		return &opsSource{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &opsSource{f: f}, nil
}

// runOpsScript reads a tiny line-oriented op script:
//
//	create_node <id> <plugin> [args...]
//	track <network_id> <addr> <hostname> <kbps_up> <kbps_down>
//	end
//
// create_node/end route through the master's router as ops; track is not
// an op at all (it carries no per-worker completion semantics) and is
// broadcast directly to every slave as a bus.FrameTrack, per §4.7/§4.9.
func runOpsScript(ctx context.Context, src *opsSource, coord *coordinator.Master, client *grpcbus.Client, slaveIDs []string, log *slog.Logger) error {
	r := src.f
	var scanner *bufio.Scanner
	if r != nil {
		scanner = bufio.NewScanner(r)
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}

	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		n++
		id := fmt.Sprintf("op-%d", n)

		switch fields[0] {
		case "create_node":
			if len(fields) < 3 {
				return fmt.Errorf("master: malformed create_node line %q", line)
			}
			op := coordinator.CreateNode{NodeID: fields[1], Plugin: fields[2], Args: fields[3:]}
			if err := coord.RouteOp(id, op); err != nil {
				return err
			}
		case "track":
			if len(fields) < 6 {
				return fmt.Errorf("master: malformed track line %q", line)
			}
			networkID, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return fmt.Errorf("master: malformed track line %q: %w", line, err)
			}
			kbpsUp, err := strconv.ParseUint(fields[4], 10, 64)
			if err != nil {
				return fmt.Errorf("master: malformed track line %q: %w", line, err)
			}
			kbpsDown, err := strconv.ParseUint(fields[5], 10, 64)
			if err != nil {
				return fmt.Errorf("master: malformed track line %q: %w", line, err)
			}
			track := &bus.TrackFrame{
				NetworkID: networkID,
				Addr:      fields[2],
				Hostname:  fields[3],
				KbpsUp:    kbpsUp,
				KbpsDown:  kbpsDown,
			}
			for _, slaveID := range slaveIDs {
				if err := client.Send(ctx, slaveID, bus.Frame{
					Type:      bus.FrameTrack,
					SrcWorker: "master",
					Track:     track,
				}); err != nil {
					return fmt.Errorf("master: send track to %s: %w", slaveID, err)
				}
			}
		case "end":
			if err := coord.RouteOp(id, coordinator.EndOp{}); err != nil {
				return err
			}
		default:
			log.Warn("master: ignoring unrecognized op line", "line", line)
		}
	}
	return scanner.Err()
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
