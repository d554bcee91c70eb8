// Package ingest reconstructs market state from ledger events: a chunked
// historical backfill, a live log subscription, and a dedup cache that joins
// the two feeds into one at-most-once event stream.
package ingest

import (
	"sync"

	"github.com/yifanzh/predmirror/internal/domain"
)

// DefaultDedupCapacity bounds the dedup cache to the most recent event
// identities.
const DefaultDedupCapacity = 100

// Dedup is a bounded set of already-processed event identities shared by the
// backfill and live feeds. Eviction is strictly FIFO on insertion order, not
// recency of observation. Safe for concurrent use.
type Dedup struct {
	mu       sync.Mutex
	seen     map[domain.EventID]struct{}
	order    []domain.EventID
	capacity int
}

// NewDedup creates a Dedup bounded to capacity entries; a non-positive
// capacity falls back to DefaultDedupCapacity.
func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Dedup{
		seen:     make(map[domain.EventID]struct{}, capacity),
		order:    make([]domain.EventID, 0, capacity),
		capacity: capacity,
	}
}

// Observe reports whether the identity is new. A new identity is recorded
// and true is returned (process it); a known identity returns false (drop
// it). When recording exceeds the capacity the oldest-inserted identity is
// evicted.
func (d *Dedup) Observe(id domain.EventID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}

	return true
}

// Len returns the number of identities currently held.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
