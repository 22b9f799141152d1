package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

const maxPatientLabel = 120

// AlertsList returns the history newest first. ?limit trims it further.
func AlertsList(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", alerts.DefaultHistoryLimit, 1, alerts.DefaultHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(history) > limit {
			history = history[:limit]
		}
		responses.WriteSuccess(w, history)
	}
}

func AlertRaise(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body alerts.RaiseAlertRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body.Patient = validators.SanitizeString(body.Patient, maxPatientLabel)
		alert, err := svc.Raise(r.Context(), body, alerts.SourceApp)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, alert)
	}
}

func AlertGet(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alert, err := svc.GetAlert(r.Context(), chi.URLParam(r, "alertId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}

// AlertHandle marks an alert handled by the caller.
func AlertHandle(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		handledBy := sess.Identity.DisplayName
		if handledBy == "" {
			handledBy = sess.Identity.EmailLocalPart()
		}
		alert, err := svc.Handle(r.Context(), chi.URLParam(r, "alertId"), handledBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}
