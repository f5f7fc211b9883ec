// ABOUTME: Tests for structured identifier generation and validation.
// ABOUTME: Covers wire formats, concurrent uniqueness, and timestamp correlation.

package ident

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	g := New("")

	tests := []struct {
		name string
		kind string
		id   string
	}{
		{"session", KindSession, g.Session("user-42", "web")},
		{"connection", KindConnection, g.Connection()},
		{"client", KindClient, g.Client("slack", "team-1", "bot")},
		{"event", KindEvent, g.Event()},
		{"audit", KindAudit, g.Audit("route", "user-42")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Valid(tt.kind, tt.id), "id %q should match %s format", tt.id, tt.kind)
		})
	}
}

func TestConnectionEnvironmentTag(t *testing.T) {
	prod := New(EnvProd).Connection()
	assert.True(t, strings.HasPrefix(prod, "ws_prod_"), "got %q", prod)
	assert.True(t, Valid(KindConnection, prod))

	staging := New(EnvStaging).Connection()
	assert.True(t, strings.HasPrefix(staging, "ws_staging_"), "got %q", staging)
	assert.True(t, Valid(KindConnection, staging))

	none := New("").Connection()
	assert.True(t, strings.HasPrefix(none, "ws_"), "got %q", none)
	assert.False(t, strings.HasPrefix(none, "ws_prod_"))
	assert.True(t, Valid(KindConnection, none))
}

func TestSanitizeContextTokens(t *testing.T) {
	g := New("")
	id := g.Session("User_42!", "Web App")
	assert.True(t, Valid(KindSession, id), "got %q", id)
	assert.Contains(t, id, "user42")

	// Empty context tokens must not collapse field positions.
	id = g.Session("", "")
	assert.True(t, Valid(KindSession, id), "got %q", id)
}

func TestBareTokensRejected(t *testing.T) {
	for _, kind := range []string{KindSession, KindConnection, KindClient, KindEvent, KindAudit} {
		assert.False(t, Valid(kind, "d41d8cd98f00b204e9800998ecf8427e"), "kind %s", kind)
		assert.False(t, Valid(kind, ""), "kind %s", kind)
	}
	assert.False(t, Valid("widget", "widget_123_1_deadbeef"))
}

func TestConcurrentUniqueness(t *testing.T) {
	g := New(EnvProd)

	const workers = 8
	const perWorker = 250 // 2000 total, well past the 1000 floor

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker*2)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Connection(), g.Event())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				require.False(t, seen[id], "duplicate identifier %q", id)
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker*2)
}

func TestRelatedIdentifiersCorrelate(t *testing.T) {
	g := New("")

	// A connection and its session minted in one request flow must carry
	// timestamps within a 10 second window.
	connID := g.Connection()
	sessID := g.Session("user-1", "web")

	connTS := timestampField(t, connID, 1)
	sessTS := timestampField(t, sessID, 3)

	diff := connTS - sessTS
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, (10 * time.Second).Milliseconds())
}

// timestampField extracts the millisecond timestamp at the given
// underscore-separated position.
func timestampField(t *testing.T, id string, pos int) int64 {
	t.Helper()
	parts := strings.Split(id, "_")
	require.Greater(t, len(parts), pos)
	ts, err := strconv.ParseInt(parts[pos], 10, 64)
	require.NoError(t, err)
	return ts
}
