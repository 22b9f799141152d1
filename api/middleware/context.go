package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
)

// UserIDFromContext returns the signed-in user's id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if sess, ok := pkgAuth.SessionFromContext(ctx); ok {
		return sess.Identity.UID
	}
	return ""
}

// SessionFromContext returns the session placed by Auth.
func SessionFromContext(ctx context.Context) (pkgAuth.Session, bool) {
	return pkgAuth.SessionFromContext(ctx)
}
