package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// PatientsList returns active patients ordered by last name.
func PatientsList(svc patients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func PatientCreate(svc patients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body patients.CreatePatientRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := svc.CreatePatient(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createdResponse{ID: id})
	}
}

func PatientGet(svc patients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient, err := svc.GetPatient(r.Context(), chi.URLParam(r, "patientId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, patient)
	}
}

// PatientUpdate merges the sent fields. "room": null clears the room.
func PatientUpdate(svc patients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body patients.UpdatePatientRequest
		nulls, err := validators.DecodeJSONPatch(r, &body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if nulls["room"] {
			body.Room = new(string)
		}
		if err := svc.UpdatePatient(r.Context(), chi.URLParam(r, "patientId"), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func PatientDelete(svc patients.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeletePatient(r.Context(), chi.URLParam(r, "patientId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
