// Package topology holds the per-link latency table the safe-time
// protocol needs (min_latency/max_latency, §4.6), named by interface
// since full link emulation is explicitly out of the core's scope.
package topology

import (
	"container/heap"
	"fmt"

	"github.com/parasim/parasim/internal/vtime"
)

// Topology exposes only what the safe-time protocol and the bandwidth
// scheduler stub need from the topology oracle.
type Topology interface {
	MinLatency() vtime.Time
	MaxLatency() vtime.Time
	ShortestLatency(from, to string) (vtime.Time, error)
}

type edge struct {
	to      string
	latency vtime.Time
}

// Graph is a small in-memory latency graph with Dijkstra-style shortest
// path, enough to satisfy the Topology interface without pulling in a
// full routing/BGP stack (out of scope per spec.md §1).
type Graph struct {
	adjacency  map[string][]edge
	minLatency vtime.Time
	maxLatency vtime.Time
}

// NewGraph creates an empty graph; min/max latency start at their
// identity values (Max/0) and tighten as links are added.
func NewGraph() *Graph {
	return &Graph{
		adjacency:  make(map[string][]edge),
		minLatency: vtime.Max,
		maxLatency: 0,
	}
}

// AddLink records a bidirectional link between a and b with the given
// one-way latency, updating the graph-wide min/max.
func (g *Graph) AddLink(a, b string, latency vtime.Time) {
	g.adjacency[a] = append(g.adjacency[a], edge{to: b, latency: latency})
	g.adjacency[b] = append(g.adjacency[b], edge{to: a, latency: latency})
	if latency < g.minLatency {
		g.minLatency = latency
	}
	if latency > g.maxLatency {
		g.maxLatency = latency
	}
}

// MinLatency returns the smallest link latency in the graph, or
// vtime.Max if no links have been added.
func (g *Graph) MinLatency() vtime.Time { return g.minLatency }

// MaxLatency returns the largest link latency in the graph.
func (g *Graph) MaxLatency() vtime.Time { return g.maxLatency }

type queueItem struct {
	node string
	dist vtime.Time
	index int
}

type priorityQueue []*queueItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *priorityQueue) Push(x interface{}) {
	it := x.(*queueItem)
	it.index = len(*q)
	*q = append(*q, it)
}
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// ShortestLatency runs Dijkstra's algorithm over the link latencies.
func (g *Graph) ShortestLatency(from, to string) (vtime.Time, error) {
	if from == to {
		return 0, nil
	}
	dist := map[string]vtime.Time{from: 0}
	pq := &priorityQueue{{node: from, dist: 0}}
	heap.Init(pq)

	visited := make(map[string]bool)
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*queueItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == to {
			return cur.dist, nil
		}
		for _, e := range g.adjacency[cur.node] {
			next := cur.dist + e.latency
			if best, ok := dist[e.to]; !ok || next < best {
				dist[e.to] = next
				heap.Push(pq, &queueItem{node: e.to, dist: next})
			}
		}
	}
	return 0, fmt.Errorf("topology: no path from %s to %s", from, to)
}
