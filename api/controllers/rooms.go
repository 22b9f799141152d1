package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/api/validators"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

type createdResponse struct {
	ID string `json:"id"`
}

func RoomsList(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListRooms(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func RoomCreate(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rooms.CreateRoomRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := svc.CreateRoom(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createdResponse{ID: id})
	}
}

// RoomGet loads the stored room to prefill an edit.
func RoomGet(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := svc.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, room)
	}
}

// RoomUpdate merges the sent fields. "floor": null clears the floor.
func RoomUpdate(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rooms.UpdateRoomRequest
		nulls, err := validators.DecodeJSONPatch(r, &body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if nulls["floor"] {
			body.Floor = new(string)
		}
		if err := svc.UpdateRoom(r.Context(), chi.URLParam(r, "roomId"), body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func RoomDelete(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteRoom(r.Context(), chi.URLParam(r, "roomId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
