package handlers

import (
	"net/http"

	"github.com/chatrtc/internal/service"
	"github.com/rs/zerolog"
)

// HandleRelayCredentials mints a fresh relay credential for the caller.
func HandleRelayCredentials(relay service.RelayService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(userIDKey).(int)

		credential, err := relay.Issue(userID)
		if err != nil {
			logger.Error().Err(err).Int("user_id", userID).Msg("Failed to issue relay credential")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		respondJSON(w, http.StatusOK, credential, logger)
	}
}
