package domain

// Identity is the authenticated principal attached to a connection,
// extracted from verified token claims.
type Identity struct {
	UserID   string
	Username string
}
