// ABOUTME: Structured, sortable, collision-resistant identifier generation.
// ABOUTME: Produces sess/ws/client/event/audit IDs with timestamp and random suffix.

package ident

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind prefixes for generated identifiers.
const (
	KindSession    = "sess"
	KindConnection = "ws"
	KindClient     = "client"
	KindEvent      = "event"
	KindAudit      = "audit"
)

// Environment tags. An empty environment omits the tag entirely.
const (
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Generator mints structured identifiers. Every identifier carries a kind
// prefix, a millisecond Unix timestamp, a process-wide counter, and an
// 8-hex-character random suffix, separated by underscores. The combination of
// counter and random suffix keeps concurrent generation collision-free
// without coordination; the timestamp keeps identifiers from the same request
// flow correlatable.
//
// The zero value is not usable; construct with New.
type Generator struct {
	env     string
	counter atomic.Uint64
	now     func() time.Time
}

// New creates a Generator. env tags connection identifiers ("staging",
// "prod", or "" for none).
func New(env string) *Generator {
	g := &Generator{now: time.Now}
	if env != "" {
		g.env = sanitize(env)
	}
	return g
}

// Session returns a session identifier: sess_<ctx>_<ctx>_<millis>_<hex>.
// The two context tokens typically identify the user and the entry service.
func (g *Generator) Session(ctx1, ctx2 string) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s",
		KindSession, sanitize(ctx1), sanitize(ctx2), g.millis(), suffix())
}

// Connection returns a connection identifier: ws_[env_]<millis>_<counter>_<hex>.
func (g *Generator) Connection() string {
	if g.env != "" {
		return fmt.Sprintf("%s_%s_%d_%d_%s",
			KindConnection, g.env, g.millis(), g.counter.Add(1), suffix())
	}
	return fmt.Sprintf("%s_%d_%d_%s",
		KindConnection, g.millis(), g.counter.Add(1), suffix())
}

// Client returns a client identifier: client_<service>_<ctx>_<ctx>_<millis>_<hex>.
func (g *Generator) Client(service, ctx1, ctx2 string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%d_%s",
		KindClient, sanitize(service), sanitize(ctx1), sanitize(ctx2), g.millis(), suffix())
}

// Event returns an event identifier: event_<millis>_<counter>_<hex>.
func (g *Generator) Event() string {
	return fmt.Sprintf("%s_%d_%d_%s",
		KindEvent, g.millis(), g.counter.Add(1), suffix())
}

// Audit returns an audit record identifier: audit_<record_type>_<ctx>_<millis>_<hex>.
func (g *Generator) Audit(recordType, ctx string) string {
	return fmt.Sprintf("%s_%s_%s_%d_%s",
		KindAudit, sanitize(recordType), sanitize(ctx), g.millis(), suffix())
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

// suffix returns 8 hex characters of fresh randomness. Derived from a v4
// UUID so the entropy source matches the rest of the codebase.
func suffix() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:4])
}

// sanitize lowercases a context token and strips every character that would
// break the underscore-separated format. Empty tokens become "x" so field
// positions stay stable for parsers.
func sanitize(token string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(token) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
