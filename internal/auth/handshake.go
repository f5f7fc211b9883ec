// ABOUTME: Extracts and verifies credentials from a WebSocket upgrade request.
// ABOUTME: Accepts Authorization: Bearer headers or a token query parameter for browser clients.

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoCredentials indicates the upgrade request carried no token at all.
var ErrNoCredentials = errors.New("no credentials in handshake")

// TokenFromRequest extracts the bearer token from an upgrade request.
// Browsers cannot set custom headers on WebSocket handshakes, so a "token"
// query parameter is accepted as a fallback.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix)), nil
		}
		return "", ErrInvalidToken
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrNoCredentials
}

// Authenticate resolves the user ID for an upgrade request using the given
// verifier. A nil verifier disables auth: the caller must supply an
// anonymous identity scheme instead.
func Authenticate(r *http.Request, verifier TokenVerifier) (string, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return "", err
	}
	return verifier.Verify(token)
}
