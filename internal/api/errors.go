package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[scheduling.Kind]int{
	scheduling.KindValidation: http.StatusBadRequest,
	scheduling.KindNotFound:   http.StatusNotFound,
	scheduling.KindConflict:   http.StatusConflict,
	scheduling.KindForbidden:  http.StatusForbidden,
}

// writeEngineError renders an engine error. Availability conflicts carry the
// full suggestion payload; internal errors are logged and not echoed.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		res := conflict.Result
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:                  conflict.Error(),
			Reason:                 res.Reason,
			ConflictingAppointment: res.ConflictingAppointment,
			AlternativeTimes:       nonNil(res.AlternativeTimes),
			AlternativeRooms:       nonNil(res.AlternativeRooms),
		})
		return
	}

	status, ok := kindStatus[scheduling.KindOf(err)]
	if !ok {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	details := err.Error()
	var e *scheduling.Error
	if errors.As(err, &e) {
		details = e.Message
	}
	writeError(w, status, scheduling.CodeOf(err), details)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
