package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/auth/session"
	"github.com/angelmondragon/nursecall-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// streamTokenParam carries the access token for EventSource clients, which
// cannot set request headers.
const streamTokenParam = "access_token"

type bearerAuth struct {
	cfg      config.JWTConfig
	sessions session.AccessSessionChecker
	logg     *logger.Logger
}

// Auth validates a bearer token and seeds the request context with the session.
// A nil session checker skips the revocation lookup.
func Auth(cfg config.JWTConfig, sessions session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	a := bearerAuth{cfg: cfg, sessions: sessions, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := a.authenticate(r)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="nursecall"`)
				}
				responses.WriteError(r.Context(), a.logg, w, err)
				return
			}
			ctx := pkgAuth.WithSession(r.Context(), sess)
			if a.logg != nil {
				ctx = a.logg.WithUserID(ctx, sess.Identity.UID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a bearerAuth) authenticate(r *http.Request) (pkgAuth.Session, error) {
	token, err := requestToken(r)
	if err != nil {
		return pkgAuth.Session{}, err
	}
	claims, err := pkgAuth.ParseAccessToken(a.cfg, token)
	if err != nil {
		return pkgAuth.Session{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	sess, ok := pkgAuth.SessionFromClaims(claims)
	if !ok {
		return pkgAuth.Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if a.sessions == nil {
		return sess, nil
	}
	live, err := a.sessions.HasSession(r.Context(), sess.AccessID)
	switch {
	case err != nil:
		return pkgAuth.Session{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	case !live:
		return pkgAuth.Session{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
	}
	return sess, nil
}

// requestToken prefers the Authorization header and falls back to the query
// string only for event-stream requests.
func requestToken(r *http.Request) (string, error) {
	token, err := BearerToken(r)
	if err == nil || !acceptsEventStream(r) {
		return token, err
	}
	if token = strings.TrimSpace(r.URL.Query().Get(streamTokenParam)); token != "" {
		return token, nil
	}
	return "", err
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// BearerToken reads the token from the Authorization header. The "Bearer"
// scheme is optional.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, rest, _ := strings.Cut(header, " ")
	if strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	}
	if header == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return header, nil
}
