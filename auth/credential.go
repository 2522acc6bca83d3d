package auth

import (
	coreerrors "chat-core/errors"
	"net/http"
	"strings"
)

const (
	cookieName = "token"
	queryParam = "token"
)

// ExtractToken pulls the credential off a connection attempt.
// Priority order: session cookie, then Authorization bearer header
// supplied with the handshake, then the token query parameter.
func ExtractToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, nil
		}
	}

	if token := r.URL.Query().Get(queryParam); token != "" {
		return token, nil
	}

	return "", coreerrors.ErrMissingToken
}
