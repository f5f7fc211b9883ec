// ABOUTME: Regex validation for the fixed identifier wire formats.
// ABOUTME: Collaborators parse identifiers by field position; these patterns are the contract.

package ident

import "regexp"

// Wire-format patterns, one per identifier kind. Bare random tokens with no
// kind/timestamp structure never validate.
var (
	sessionPattern    = regexp.MustCompile(`^sess_[a-z0-9-]+_[a-z0-9-]+_[0-9]+_[0-9a-f]{8}$`)
	connectionPattern = regexp.MustCompile(`^ws_(?:(?:staging|prod)_)?[0-9]+_[0-9]+_[0-9a-f]{8}$`)
	clientPattern     = regexp.MustCompile(`^client_[a-z0-9-]+_[a-z0-9-]+_[a-z0-9-]+_[0-9]+_[0-9a-f]{8}$`)
	eventPattern      = regexp.MustCompile(`^event_[0-9]+_[0-9]+_[0-9a-f]{8}$`)
	auditPattern      = regexp.MustCompile(`^audit_[a-z0-9-]+_[a-z0-9-]+_[0-9]+_[0-9a-f]{8}$`)
)

var patterns = map[string]*regexp.Regexp{
	KindSession:    sessionPattern,
	KindConnection: connectionPattern,
	KindClient:     clientPattern,
	KindEvent:      eventPattern,
	KindAudit:      auditPattern,
}

// Valid reports whether id matches the wire format for the given kind.
// Unknown kinds report false.
func Valid(kind, id string) bool {
	p, ok := patterns[kind]
	if !ok {
		return false
	}
	return p.MatchString(id)
}
