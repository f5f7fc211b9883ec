// ABOUTME: Duplicate suppression for inbound messages carrying correlation keys.
// ABOUTME: TTL and capacity bounded; pruning happens inline on insert, no background goroutine.

package replay

import (
	"sync"
	"time"
)

// entry remembers when a key entered the queue. Re-marked keys get a fresh
// queue entry; stale ones are recognized during pruning by timestamp.
type entry struct {
	key    string
	seenAt time.Time
}

// Guard tracks recently seen message keys so retransmitted messages are
// processed at most once within the TTL window. Memory is bounded by
// capacity; when full, the oldest keys are evicted first.
type Guard struct {
	mu       sync.Mutex
	seen     map[string]time.Time
	queue    []entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// NewGuard creates a Guard with the given TTL and maximum tracked keys.
func NewGuard(ttl time.Duration, capacity int) *Guard {
	return &Guard{
		seen:     make(map[string]time.Time),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Duplicate atomically checks whether key was seen within the TTL and marks
// it. Returns true for a duplicate (caller should skip processing), false
// when the key is new and now tracked. The single check-and-mark avoids the
// race a separate check/mark pair would have.
func (g *Guard) Duplicate(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if seenAt, ok := g.seen[key]; ok && now.Sub(seenAt) < g.ttl {
		return true
	}

	g.pruneLocked(now)
	g.seen[key] = now
	g.queue = append(g.queue, entry{key: key, seenAt: now})
	return false
}

// Len returns the number of currently tracked keys.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// pruneLocked drops expired queue entries, then evicts oldest keys until a
// slot is free. Queue entries superseded by a re-mark are skipped: the map
// holds the authoritative timestamp.
func (g *Guard) pruneLocked(now time.Time) {
	drop := 0
	for drop < len(g.queue) && now.Sub(g.queue[drop].seenAt) >= g.ttl {
		e := g.queue[drop]
		if seenAt, ok := g.seen[e.key]; ok && seenAt.Equal(e.seenAt) {
			delete(g.seen, e.key)
		}
		drop++
	}

	// Still full after TTL pruning: evict oldest live entries.
	for len(g.seen) >= g.capacity && drop < len(g.queue) {
		e := g.queue[drop]
		if seenAt, ok := g.seen[e.key]; ok && seenAt.Equal(e.seenAt) {
			delete(g.seen, e.key)
		}
		drop++
	}

	if drop > 0 {
		g.queue = append(g.queue[:0], g.queue[drop:]...)
	}
}
