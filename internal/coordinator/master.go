package coordinator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/parasim/parasim/internal/event"
)

// Master holds the authoritative topology and operation stream and
// fans ops out to registered slaves, aggregating their DoneSlave reports
// until the run ends (§4.7).
type Master struct {
	log    *slog.Logger
	router *Router

	mu        sync.Mutex
	completed map[string]bool
	total     int

	// Dispatch sends (id, op) to the named slave; the caller wires this
	// to the bus (an Op frame per destination).
	Dispatch func(slaveID string, id string, op event.Op) error

	// OnRunComplete fires exactly once, when every registered slave has
	// reported DoneSlave.
	OnRunComplete func()
}

// NewMaster creates a master with no slaves registered yet.
func NewMaster(log *slog.Logger) *Master {
	return &Master{
		log:       log,
		router:    NewRouter(nil),
		completed: make(map[string]bool),
	}
}

// AddSlave registers a slave by ID, adding it to the CreateNode
// round-robin order.
func (m *Master) AddSlave(id string) {
	m.router.Add(id)
	m.mu.Lock()
	m.total++
	m.mu.Unlock()
}

// RouteOp decides where op should go (one slave for CreateNode,
// broadcast otherwise) and calls Dispatch accordingly.
func (m *Master) RouteOp(id string, op event.Op) error {
	if m.Dispatch == nil {
		return fmt.Errorf("coordinator: master has no Dispatch wired")
	}
	dest, broadcast := m.router.Route(op)
	if broadcast {
		for _, slaveID := range m.router.Destinations() {
			if err := m.Dispatch(slaveID, id, op); err != nil {
				return err
			}
		}
		return nil
	}
	return m.Dispatch(dest, id, op)
}

// ReportSlaveDone records that slaveID has completed; once every
// registered slave has reported, OnRunComplete fires.
func (m *Master) ReportSlaveDone(slaveID string) {
	m.mu.Lock()
	if m.completed[slaveID] {
		m.mu.Unlock()
		return
	}
	m.completed[slaveID] = true
	done := len(m.completed) == m.total
	m.mu.Unlock()

	m.log.Info("coordinator: slave reported done", "slave", slaveID)
	if done && m.OnRunComplete != nil {
		m.OnRunComplete()
	}
}
