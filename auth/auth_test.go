package auth

import (
	coreerrors "chat-core/errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_for_auth_package"

func TestVerifier_ValidToken(t *testing.T) {
	req := require.New(t)

	// Given a freshly minted token
	token, err := GenerateToken(testSecret, "u1", "alice", time.Hour)
	req.NoError(err)

	// When it is verified
	identity, err := NewVerifier(testSecret).Verify(token)

	// Then the identity carries both claims
	req.NoError(err)
	req.Equal("u1", identity.UserID)
	req.Equal("alice", identity.Username)
}

func TestVerifier_ExpiredToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "u1", "alice", -time.Minute)
	req.NoError(err)

	_, err = NewVerifier(testSecret).Verify(token)
	req.ErrorIs(err, coreerrors.ErrInvalidToken)
}

func TestVerifier_WrongSecret(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("another_secret_entirely_here", "u1", "alice", time.Hour)
	req.NoError(err)

	_, err = NewVerifier(testSecret).Verify(token)
	req.ErrorIs(err, coreerrors.ErrInvalidToken)
}

func TestVerifier_Garbage(t *testing.T) {
	_, err := NewVerifier(testSecret).Verify("not-a-jwt")
	require.ErrorIs(t, err, coreerrors.ErrInvalidToken)
}

func TestExtractToken_CookieFirst(t *testing.T) {
	req := require.New(t)

	// Given all three credential carriers set at once
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	r.Header.Set("Authorization", "Bearer from-header")

	// Then the cookie wins
	token, err := ExtractToken(r)
	req.NoError(err)
	req.Equal("from-cookie", token)
}

func TestExtractToken_BearerBeforeQuery(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")

	token, err := ExtractToken(r)
	req.NoError(err)
	req.Equal("from-header", token)
}

func TestExtractToken_QueryFallback(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)

	token, err := ExtractToken(r)
	req.NoError(err)
	req.Equal("from-query", token)
}

func TestExtractToken_MalformedBearerHeader(t *testing.T) {
	req := require.New(t)

	// Given a header glued together without the separating space
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearerabc")

	// Then it is not treated as a credential
	_, err := ExtractToken(r)
	req.ErrorIs(err, coreerrors.ErrMissingToken)

	// And a well-formed query token still gets picked up behind it
	r = httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearerabc")
	token, err := ExtractToken(r)
	req.NoError(err)
	req.Equal("from-query", token)
}

func TestExtractToken_Absent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, err := ExtractToken(r)
	require.ErrorIs(t, err, coreerrors.ErrMissingToken)
}
