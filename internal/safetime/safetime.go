// Package safetime implements the safe-time protocol (C6): the
// conservative synchronization core that turns each worker's own virtual
// time progress, plus its peers' published state, into a window no event
// may be dispatched past without risking a causality violation.
package safetime

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/parasim/parasim/internal/vtime"
)

// WorkerID identifies a peer worker within the same slave (or across
// slaves, for the master's aggregate view).
type WorkerID string

// PeerState is this worker's most recently observed view of one peer,
// refreshed by State frames arriving over the bus (§4.7). Valid is cleared
// by the staleness watchdog if no State frame arrives within the
// configured TTL, forcing CalcWindow to stall rather than advance on
// possibly-outdated information.
type PeerState struct {
	LastEvent vtime.Time
	Current   vtime.Time
	NextEvent vtime.Time
	Window    vtime.Time
	Valid     bool
}

// MyState is the 4-tuple this worker publishes to its peers.
type MyState struct {
	LastEvent vtime.Time
	NextEvent vtime.Time
	Window    vtime.Time
	Current   vtime.Time
}

// Broadcast is the State frame payload sync_time decides to emit, or nil
// if no broadcast is due this round.
type Broadcast struct {
	LastEvent vtime.Time
	Current   vtime.Time
	NextEvent vtime.Time
	Window    vtime.Time
}

// Protocol tracks one worker's own state and its peers', implementing
// calc_window and sync_time exactly per spec.md §4.6. A Protocol is owned
// by exactly one worker and is not safe to share across worker goroutines
// (matching §5's single-threaded-per-worker model); its internal mutex
// exists only to serialize the staleness watchdog's eviction callback
// against the worker's own goroutine.
type Protocol struct {
	mu         sync.Mutex
	minLatency vtime.Time
	peers      map[WorkerID]*PeerState

	staleness *ttlcache.Cache[WorkerID, struct{}]
	ttl       time.Duration

	my            MyState
	lastBroadcast vtime.Time
	broadcasted   bool
}

// New creates a protocol instance. minLatency is the topology's smallest
// link delay, clamped to a floor by the caller (RUNAHEAD_FLOOR_MS).
// staleTTL bounds how long a peer's last-observed State frame is trusted
// before CalcWindow treats it as invalid; a State frame observed via
// Observe refreshes the peer's deadline.
func New(minLatency vtime.Time, staleTTL time.Duration) *Protocol {
	p := &Protocol{
		minLatency: minLatency,
		peers:      make(map[WorkerID]*PeerState),
		ttl:        staleTTL,
	}
	p.staleness = ttlcache.New(ttlcache.WithTTL[WorkerID, struct{}](staleTTL))
	p.staleness.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[WorkerID, struct{}]) {
		p.mu.Lock()
		if peer, ok := p.peers[item.Key()]; ok {
			peer.Valid = false
		}
		p.mu.Unlock()
	})
	go p.staleness.Start()
	return p
}

// Close stops the staleness watchdog goroutine.
func (p *Protocol) Close() { p.staleness.Stop() }

// AddPeer registers a new peer as invalid until its first State frame
// arrives.
func (p *Protocol) AddPeer(id WorkerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[id]; ok {
		return
	}
	p.peers[id] = &PeerState{}
	p.staleness.Set(id, struct{}{}, p.ttl)
}

// RemovePeer drops a peer entirely, e.g. once its DoneWorker frame has
// been observed and it can no longer emit causally-relevant events.
func (p *Protocol) RemovePeer(id WorkerID) {
	p.mu.Lock()
	delete(p.peers, id)
	p.mu.Unlock()
	p.staleness.Delete(id)
}

// Observe records a State frame received from a peer and marks it valid,
// refreshing its staleness deadline.
func (p *Protocol) Observe(id WorkerID, last, current, next, window vtime.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peer, ok := p.peers[id]
	if !ok {
		peer = &PeerState{}
		p.peers[id] = peer
	}
	peer.LastEvent = last
	peer.Current = current
	peer.NextEvent = next
	peer.Window = window
	peer.Valid = true
	p.staleness.Set(id, struct{}{}, p.ttl)
}

// subOne computes t-1 saturating at 0, since vtime.Time is unsigned and
// min_latency may legitimately be as small as the configured floor.
func subOne(t vtime.Time) vtime.Time {
	if t == 0 {
		return 0
	}
	return t - 1
}

// CalcWindow implements §4.6's calc_window. stalled reports whether any
// op in this worker's stalled_ops list is still unresolved (step 1).
func (p *Protocol) CalcWindow(stalled bool) vtime.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calcWindowLocked(stalled)
}

func (p *Protocol) calcWindowLocked(stalled bool) vtime.Time {
	if stalled {
		return vtime.Invalid
	}
	if len(p.peers) == 0 {
		return vtime.Max
	}

	minLast := vtime.Max
	minCurrent := vtime.Max
	for _, peer := range p.peers {
		if !peer.Valid {
			return vtime.Invalid
		}
		minLast = vtime.Min(minLast, peer.LastEvent)
		minCurrent = vtime.Min(minCurrent, peer.Current)
	}

	base := minLast.Add(p.minLatency)
	base = subOne(base)
	forward := minCurrent.Add(p.minLatency)
	forward = subOne(forward)
	return vtime.Max2(base, forward)
}

// SyncTime implements §4.6's sync_time: it refreshes this worker's
// published 4-tuple from currentTime/peekMin, recomputes the window, and
// reports a Broadcast payload when the advancing barrier has outrun what
// peers last heard (or no peer state has ever been sent). The caller is
// responsible for actually emitting the State frame and nothing else
// mutates lastBroadcast.
func (p *Protocol) SyncTime(currentTime, peekMin vtime.Time, stalled bool) (window vtime.Time, bcast *Broadcast) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.my.LastEvent = currentTime
	p.my.NextEvent = peekMin

	window = p.calcWindowLocked(stalled)
	if window.Valid() {
		p.my.Window = window
	}
	p.my.Current = vtime.Min(p.my.NextEvent, p.my.Window)

	advance := subOne(p.my.Current.Add(p.minLatency))
	if !advance.Valid() || !p.lastBroadcast.Before(advance) {
		return window, nil
	}

	outrunsPeer := !p.broadcasted
	for _, peer := range p.peers {
		if !peer.Window.Valid() || peer.Window.Before(advance) {
			outrunsPeer = true
			break
		}
	}
	if outrunsPeer {
		p.broadcasted = true
		p.lastBroadcast = advance
		bcast = &Broadcast{
			LastEvent: p.my.LastEvent,
			Current:   p.my.Current,
			NextEvent: p.my.NextEvent,
			Window:    p.my.Window,
		}
	}
	return window, bcast
}

// My returns a snapshot of this worker's currently published state.
func (p *Protocol) My() MyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.my
}

// PeerCount reports how many peers are tracked. A Protocol with no peers
// always computes a window of vtime.Max.
func (p *Protocol) PeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}
