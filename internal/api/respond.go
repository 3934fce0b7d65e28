package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps the appointment error kinds onto HTTP statuses.
// Storage failures were already logged by the service.
func handleServiceError(w http.ResponseWriter, err error) {
	var conflict *appointment.ConflictError
	switch {
	case errors.As(err, &conflict):
		id := conflict.ConflictingID
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         "appointment_conflict",
			Details:       err.Error(),
			ConflictingID: &id,
		})
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "appointment_conflict", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrPetBeingBooked):
		writeError(w, http.StatusServiceUnavailable, "pet_being_booked", err.Error())
	case errors.Is(err, appointment.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage is temporarily unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
