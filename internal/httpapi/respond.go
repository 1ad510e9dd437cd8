package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// errorStatus maps a service error to an HTTP status and error code.
// alreadyCheckedIn is the status used for ErrAlreadyCheckedIn, which is a
// bad request on check-in but a conflict on approval.
func errorStatus(err error, alreadyCheckedIn int) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrAlreadyCheckedIn):
		return alreadyCheckedIn, "already_checked_in"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, alreadyCheckedIn int) {
	status, code := errorStatus(err, alreadyCheckedIn)
	msg := err.Error()
	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "unexpected server error"
		if status == http.StatusServiceUnavailable {
			msg = "storage temporarily unavailable"
		}
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "code", code, slog.String("error", err.Error()))
	}
	writeError(w, status, code, msg)
}
