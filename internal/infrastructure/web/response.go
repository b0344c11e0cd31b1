package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/basel-ax/tunerelay/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type trainResponse struct {
	Success bool   `json:"success"`
	TuneID  string `json:"tune_id"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps relay errors onto HTTP status codes and a JSON body.
func writeError(w http.ResponseWriter, err error, log *zerolog.Logger) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

func mapError(err error) (int, errorResponse) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError, errorResponse{Error: "server configuration error: provider credentials are missing"}
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusRequestTimeout, errorResponse{Error: "generation took too long, try refreshing the gallery later"}
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusInternalServerError, errorResponse{Error: "generation failed on the provider"}
	case errors.As(err, &upstream):
		return http.StatusInternalServerError, errorResponse{Error: "error talking to the image provider", Details: upstream.Details()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}
