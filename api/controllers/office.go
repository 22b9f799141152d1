package controllers

import (
	"net/http"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/office"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// OfficeGet never fails; an unreadable sheet yields the default.
func OfficeGet(svc office.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, svc.Get(r.Context()))
	}
}

// OfficeUpdate edits the sheet with "head/name" style keys; null clears a field.
func OfficeUpdate(svc office.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body office.UpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		info, err := svc.Update(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}
