package auth

import (
	"chat-core/domain"
	coreerrors "chat-core/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
// Username rides along so the gateway can cache a display name without
// a profile lookup at connection time.
type CustomClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates credentials minted by the external auth layer.
// The secret comes from configuration; this service never issues
// tokens of its own outside of tests.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the signature and expiration of a JWT
// string, returning the identity it proves.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, coreerrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, coreerrors.ErrInvalidToken
	}

	return domain.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// GenerateToken creates a signed JWT for a specific user. The live
// service only verifies; this belongs to the credential layer and to
// tests that need a valid handshake.
func GenerateToken(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-core",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
