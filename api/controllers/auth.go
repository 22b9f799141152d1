package controllers

import (
	"net/http"

	"golang.org/x/text/language"

	"github.com/angelmondragon/nursecall-backend/api/middleware"
	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/auth"
	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// writeAuthError renders provider failures in the caller's language.
func writeAuthError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, locale language.Tag, err error) {
	tag := auth.MatchLocale(r.Header.Get("Accept-Language"), locale)
	responses.WriteError(r.Context(), logg, w, auth.Localize(err, tag))
}

func requireSession(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (pkgAuth.Session, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required"))
		return pkgAuth.Session{}, false
	}
	return sess, true
}

func AuthSignUp(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.SignUpRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SignUp(r.Context(), body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func AuthSignIn(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.SignInRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SignIn(r.Context(), body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AuthSignOut ends the presented session.
func AuthSignOut(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		if err := svc.SignOut(r.Context(), sess); err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "signed_out"})
	}
}

// AuthRefresh rotates the refresh token. The bearer token may be expired.
func AuthRefresh(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := middleware.BearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.AccessToken = token

		result, err := svc.Refresh(r.Context(), body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AuthPasswordReset(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.PasswordResetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SendPasswordReset(r.Context(), body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func AuthConfirmPasswordReset(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.ConfirmPasswordResetRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ConfirmPasswordReset(r.Context(), body); err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "password_reset"})
	}
}

// AuthChangePassword returns a fresh session; every other session is revoked.
func AuthChangePassword(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		var body auth.ChangePasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ChangePassword(r.Context(), sess, body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AuthUpdateIdentity(svc auth.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		var body auth.UpdateIdentityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		update := pkgAuth.IdentityUpdate{Email: body.Email, DisplayName: body.DisplayName}
		if err := svc.UpdateIdentity(r.Context(), sess.Identity.UID, sess.AuthTime, update); err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
