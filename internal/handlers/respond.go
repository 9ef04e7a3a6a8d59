package handlers

import (
	"encoding/json"
	"net/http"

	"marketplace-api/internal/apperr"

	"github.com/rs/zerolog"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, errorCode, message string) {
	respondWithJSON(w, code, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// respondWithAppError is the boundary translation: full detail goes to the
// log, the client sees only the mapped status and client-safe message.
func respondWithAppError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := apperr.StatusCode(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("Request failed")
	} else {
		logger.Warn().Err(err).Msg("Request rejected")
	}
	respondWithError(w, status, apperr.Code(err), apperr.Message(err))
}
