package controllers

import (
	"net/http"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/internal/dashboard"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// DashboardGet returns the home-screen counts and greeting.
func DashboardGet(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		summary, err := svc.Summary(r.Context(), sess.Identity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
