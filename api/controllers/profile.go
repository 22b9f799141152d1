package controllers

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"golang.org/x/text/language"
)

const photoField = "photo"

func ProfileGet(svc profiles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		profile, err := svc.GetProfile(r.Context(), sess.Identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// ProfileSave writes the profile and keeps the credentials in step. An email
// change can fail with auth/requires-recent-login.
func ProfileSave(svc profiles.Service, locale language.Tag, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		var body profiles.SaveProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.SaveProfile(r.Context(), profiles.Caller{Identity: sess.Identity, AuthTime: sess.AuthTime}, body)
		if err != nil {
			writeAuthError(w, r, logg, locale, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// ProfilePhoto accepts a multipart upload in the "photo" field.
func ProfilePhoto(svc profiles.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
		file, _, err := r.FormFile(photoField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "photo is too large"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "photo file required").
				WithDetails(map[string]string{photoField: "required"}))
			return
		}
		defer file.Close()

		profile, err := svc.UploadPhoto(r.Context(), sess.Identity, file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
