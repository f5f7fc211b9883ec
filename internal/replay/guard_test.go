// ABOUTME: Tests for the replay guard's TTL, capacity, and check-and-mark semantics.

package replay

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateWithinTTL(t *testing.T) {
	g := NewGuard(time.Minute, 100)

	assert.False(t, g.Duplicate("run_1"), "first sighting is not a duplicate")
	assert.True(t, g.Duplicate("run_1"))
	assert.False(t, g.Duplicate("run_2"))
	assert.Equal(t, 2, g.Len())
}

func TestExpiryAllowsReprocessing(t *testing.T) {
	g := NewGuard(time.Minute, 100)

	current := time.Unix(1700000000, 0)
	g.now = func() time.Time { return current }

	assert.False(t, g.Duplicate("run_1"))
	assert.True(t, g.Duplicate("run_1"))

	current = current.Add(2 * time.Minute)
	assert.False(t, g.Duplicate("run_1"), "expired key is fresh again")
}

func TestCapacityEvictsOldest(t *testing.T) {
	g := NewGuard(time.Hour, 3)

	for i := 0; i < 3; i++ {
		assert.False(t, g.Duplicate(fmt.Sprintf("run_%d", i)))
	}

	// A fourth key evicts run_0, the oldest.
	assert.False(t, g.Duplicate("run_3"))
	assert.LessOrEqual(t, g.Len(), 3)
	assert.False(t, g.Duplicate("run_0"), "evicted key is treated as unseen")
}

func TestRemarkRefreshesKey(t *testing.T) {
	g := NewGuard(time.Minute, 100)

	current := time.Unix(1700000000, 0)
	g.now = func() time.Time { return current }

	assert.False(t, g.Duplicate("run_1"))

	// Half the TTL later the key expires... unless it is seen again.
	current = current.Add(90 * time.Second)
	assert.False(t, g.Duplicate("run_1"))
	current = current.Add(30 * time.Second)
	assert.True(t, g.Duplicate("run_1"), "re-marked key carries the refreshed timestamp")
}
