package ingest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

func TestDedupObserve(t *testing.T) {
	d := NewDedup(10)

	assert.True(t, d.Observe("a"), "first sighting is new")
	assert.False(t, d.Observe("a"), "second sighting is a duplicate")
	assert.True(t, d.Observe("b"))
	assert.Equal(t, 2, d.Len())
}

func TestDedupFIFOEviction(t *testing.T) {
	d := NewDedup(100)

	for i := 0; i < 100; i++ {
		require.True(t, d.Observe(domain.EventID(fmt.Sprintf("ev-%d", i))))
	}
	require.Equal(t, 100, d.Len())

	// The 101st insertion evicts the oldest entry, not the newest.
	assert.True(t, d.Observe("ev-100"))
	assert.Equal(t, 100, d.Len())

	assert.True(t, d.Observe("ev-0"), "evicted identity reads as new again")
	assert.False(t, d.Observe("ev-100"), "recent identity still known")
}

func TestDedupEvictionIsInsertionOrdered(t *testing.T) {
	d := NewDedup(2)

	d.Observe("a")
	d.Observe("b")
	// Re-observing "a" is a duplicate and must not refresh its position.
	assert.False(t, d.Observe("a"))

	d.Observe("c") // evicts "a", the oldest insertion

	assert.True(t, d.Observe("a"))
	assert.False(t, d.Observe("c"))
}

func TestDedupDefaultCapacity(t *testing.T) {
	d := NewDedup(0)
	for i := 0; i < DefaultDedupCapacity+1; i++ {
		d.Observe(domain.EventID(fmt.Sprintf("ev-%d", i)))
	}
	assert.Equal(t, DefaultDedupCapacity, d.Len())
}
