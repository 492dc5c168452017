package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voicelog/internal/apperr"
	"voicelog/internal/calendar"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates the error taxonomy to HTTP statuses with a JSON envelope.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperr.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperr.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, apperr.ErrAlreadyRecording):
		status, code = http.StatusConflict, "already_recording"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// parseDate parses a YYYY-MM-DD value, falling back to def when raw is empty.
func parseDate(field, raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation(field, "expected YYYY-MM-DD")
	}
	return d, nil
}
