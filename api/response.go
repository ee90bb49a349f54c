package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/sshexec"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status and writes it.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var se *sshexec.StageError
	if errors.As(err, &se) {
		switch {
		case se.Kind == sshexec.KindTimeout && se.Stage == sshexec.StageConnect:
			return http.StatusRequestTimeout
		case se.Kind == sshexec.KindTimeout:
			return http.StatusGatewayTimeout
		case se.Kind == sshexec.KindOutputTooLarge:
			return http.StatusRequestEntityTooLarge
		default:
			return http.StatusInternalServerError
		}
	}

	switch {
	case errors.Is(err, fleetcron.ErrJobNotFound),
		errors.Is(err, fleetcron.ErrHostNotFound),
		errors.Is(err, fleetcron.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, fleetcron.ErrInvalidTarget),
		errors.Is(err, fleetcron.ErrInvalidSchedule),
		errors.Is(err, fleetcron.ErrEmptyGroup):
		return http.StatusBadRequest
	case errors.Is(err, fleetcron.ErrJobAlreadyExists),
		errors.Is(err, fleetcron.ErrHostAlreadyExists),
		errors.Is(err, fleetcron.ErrGroupAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
