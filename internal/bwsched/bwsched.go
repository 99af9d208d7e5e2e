// Package bwsched tracks per-link bandwidth budgets reported via Track
// frames (§3.2) and decides whether a packet of a given size may cross a
// link at the current virtual time. No token-bucket library appears
// anywhere in the retrieval pack, so this is a small hand-rolled
// implementation (documented as a deliberate stdlib-only choice in
// DESIGN.md).
package bwsched

import (
	"sync"

	"github.com/parasim/parasim/internal/vtime"
)

// bucket holds the token-bucket state for one direction of one link.
type bucket struct {
	capacityBits float64 // bucket size, in bits
	ratebps      float64 // refill rate, bits/sec
	tokens       float64
	lastRefill   vtime.Time
}

func newBucket(ratebps uint64, now vtime.Time) *bucket {
	rate := float64(ratebps)
	return &bucket{
		capacityBits: rate, // 1 second worth of burst
		ratebps:      rate,
		tokens:       rate,
		lastRefill:   now,
	}
}

func (b *bucket) refill(now vtime.Time) {
	if now <= b.lastRefill {
		return
	}
	elapsedSec := float64(now-b.lastRefill) / 1e9
	b.tokens += elapsedSec * b.ratebps
	if b.tokens > b.capacityBits {
		b.tokens = b.capacityBits
	}
	b.lastRefill = now
}

// take reports whether sizeBits may be sent now, consuming tokens if so.
func (b *bucket) take(now vtime.Time, sizeBits float64) bool {
	b.refill(now)
	if b.tokens < sizeBits {
		return false
	}
	b.tokens -= sizeBits
	return true
}

// Scheduler holds one token bucket per (link, direction) key.
type Scheduler struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates an empty bandwidth scheduler.
func New() *Scheduler {
	return &Scheduler{buckets: make(map[string]*bucket)}
}

func key(linkID string, upstream bool) string {
	if upstream {
		return linkID + "/up"
	}
	return linkID + "/down"
}

// Track records (or updates) the bandwidth budget for a link as reported
// by a Track frame, in kbps for each direction.
func (s *Scheduler) Track(linkID string, now vtime.Time, kbpsUp, kbpsDown uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key(linkID, true)] = newBucket(kbpsUp*1000, now)
	s.buckets[key(linkID, false)] = newBucket(kbpsDown*1000, now)
}

// Admit reports whether a packet of sizeBytes may cross linkID in the
// given direction at time now. An untracked link always admits, since
// bandwidth limiting is opt-in per §4.9.
func (s *Scheduler) Admit(linkID string, now vtime.Time, upstream bool, sizeBytes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key(linkID, upstream)]
	if !ok {
		return true
	}
	return b.take(now, float64(sizeBytes)*8)
}
