package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/parasim/parasim/internal/event"
	"github.com/parasim/parasim/internal/worker"
)

// Slave is the worker-group supervisor for one process: it hosts N
// worker goroutines, fans out Op frames arriving from the master (or
// from the bus more generally) according to Router, and aggregates each
// worker's completion into a single DoneSlave report upward (§4.7).
type Slave struct {
	id  string
	log *slog.Logger

	pool    pond.Pool
	router  *Router
	workers map[string]*worker.Worker

	mu        sync.Mutex
	completed map[string]bool

	// OnDoneSlave fires exactly once, when every registered worker has
	// reported Complete.
	OnDoneSlave func()
}

// NewSlave creates a slave with a worker pool of the given concurrency
// (normally the number of registered workers, so every worker's
// heartbeat loop runs concurrently per §5's "parallel across workers").
func NewSlave(id string, concurrency int, log *slog.Logger) *Slave {
	return &Slave{
		id:        id,
		log:       log,
		pool:      pond.NewPool(concurrency),
		router:    NewRouter(nil),
		workers:   make(map[string]*worker.Worker),
		completed: make(map[string]bool),
	}
}

// AddWorker registers w under id and adds it to the CreateNode
// round-robin order.
func (s *Slave) AddWorker(id string, w *worker.Worker) {
	s.workers[id] = w
	s.router.Add(id)
}

// DispatchOp routes op per §4.7: CreateNode to one worker (round-robin),
// everything else broadcast to all.
func (s *Slave) DispatchOp(id string, op event.Op) error {
	dest, broadcast := s.router.Route(op)
	if broadcast {
		for _, w := range s.workers {
			w.EnqueueOp(id, op)
		}
		return nil
	}
	w, ok := s.workers[dest]
	if !ok {
		return fmt.Errorf("coordinator: slave %s has no worker %s", s.id, dest)
	}
	w.EnqueueOp(id, op)
	return nil
}

// Start begins every registered worker's heartbeat loop on the pool,
// transitioning each from Spooling to Simulating first. tick is the
// delay between Heartbeat polls when a worker has nothing to do,
// matching "the caller polls heartbeat until completion" (§4.5).
func (s *Slave) Start(ctx context.Context, tick time.Duration) {
	for id, w := range s.workers {
		id, w := id, w
		w.BeginSimulating()
		s.pool.Submit(func() { s.runWorker(ctx, id, w, tick) })
	}
}

// Wait blocks until every worker's heartbeat loop has returned (Complete,
// Error, or ctx cancellation).
func (s *Slave) Wait() {
	s.pool.StopAndWait()
}

func (s *Slave) runWorker(ctx context.Context, id string, w *worker.Worker, tick time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		status, err := w.Heartbeat()
		if err != nil {
			s.log.Error("coordinator: worker heartbeat failed", "slave", s.id, "worker", id, "err", err)
			s.markComplete(id)
			return
		}
		switch status.Mode {
		case worker.ModeComplete, worker.ModeError:
			s.markComplete(id)
			return
		}
		if status.Dispatched == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(tick):
			}
		}
	}
}

func (s *Slave) markComplete(id string) {
	s.mu.Lock()
	s.completed[id] = true
	done := len(s.completed) == len(s.workers)
	s.mu.Unlock()

	if done && s.OnDoneSlave != nil {
		s.OnDoneSlave()
	}
}
