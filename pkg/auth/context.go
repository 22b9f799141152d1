package auth

import (
	"context"
	"time"
)

// Session is the verified caller attached to a request.
type Session struct {
	Identity Identity
	AccessID string
	AuthTime time.Time
}

type sessionKey struct{}

// SessionFromClaims builds the request session carried by an access token.
func SessionFromClaims(c *AccessTokenClaims) (Session, bool) {
	id, ok := IdentityFromClaims(c)
	if !ok || c.ID == "" {
		return Session{}, false
	}
	return Session{Identity: id, AccessID: c.ID, AuthTime: c.AuthenticatedAt()}, true
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
