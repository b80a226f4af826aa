package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"tradecore/internal/apperr"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WriteError maps the engine's error taxonomy onto HTTP statuses.
// Invariant violations surface as an opaque internal error; the detail is
// for the operator log, not the caller.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrInsufficientFunds):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrInvalidTransition):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrOrderNotFound),
		errors.Is(err, apperr.ErrPositionNotFound),
		errors.Is(err, apperr.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrInvariantViolation):
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	default:
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
