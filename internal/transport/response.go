// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the termination API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:           http.StatusBadRequest,
	model.ErrUnauthorized:         http.StatusUnauthorized,
	model.ErrForbidden:            http.StatusForbidden,
	model.ErrNotFound:             http.StatusNotFound,
	model.ErrConflict:             http.StatusConflict,
	model.ErrValidationError:      http.StatusUnprocessableEntity,
	model.ErrInvalidTransition:    http.StatusUnprocessableEntity,
	model.ErrInternalError:        http.StatusInternalServerError,
	model.ErrBackendUnavailable:   http.StatusBadGateway,
	model.ErrBackendTimeout:       http.StatusGatewayTimeout,
	model.ErrTerminationNotActive: http.StatusConflict,
	model.ErrUploadFailed:         http.StatusBadGateway,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code, stamped with the request's trace id. If err is not an
// *ErrorEnvelope, a generic 500 is returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if ee.TraceID == "" && r != nil {
		// Copy before stamping; the envelope may be a value the caller
		// still holds.
		stamped := *ee
		if rctx := model.RequestContextFrom(r.Context()); rctx != nil && rctx.TraceID != "" {
			stamped.TraceID = rctx.TraceID
		} else {
			stamped.TraceID = observability.TraceIDFromContext(r.Context())
		}
		ee = &stamped
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	WriteError(w, r, model.NewNotFoundError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, r *http.Request, details []model.FieldError) {
	WriteError(w, r, model.NewValidationError(details...))
}
