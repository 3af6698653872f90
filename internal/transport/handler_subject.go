package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/propfolio/vacate/internal/termination"
	"github.com/propfolio/vacate/model"
)

func handleSubjectGet(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		details, err := svc.GetSubject(r.Context(), rctx, chi.URLParam(r, "subjectId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, details)
	}
}
