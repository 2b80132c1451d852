package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chatrtc/internal/models"
	"github.com/chatrtc/internal/service"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// HandleSetStatus applies an explicit status change for the caller.
func HandleSetStatus(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(userIDKey).(int)

		var req models.StatusUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := presence.SetStatus(userID, req.Status); err != nil {
			logger.Warn().Err(err).Int("user_id", userID).Str("status", string(req.Status)).Msg("Rejected status update")
			http.Error(w, "Invalid status", http.StatusBadRequest)
			return
		}

		respondJSON(w, http.StatusOK, presence.OwnRecord(userID), logger)
	}
}

// HandleOwnStatus returns the caller's true record, including invisible.
func HandleOwnStatus(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(userIDKey).(int)
		respondJSON(w, http.StatusOK, presence.OwnRecord(userID), logger)
	}
}

// HandleUserStatus returns the visibility-filtered view of another user.
func HandleUserStatus(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID := r.Context().Value(userIDKey).(int)

		targetID, err := strconv.Atoi(mux.Vars(r)["userID"])
		if err != nil || targetID <= 0 {
			http.Error(w, "Invalid user ID", http.StatusBadRequest)
			return
		}

		respondJSON(w, http.StatusOK, presence.VisibleStatus(r.Context(), targetID, viewerID), logger)
	}
}

func HandleBatchStatus(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID := r.Context().Value(userIDKey).(int)

		var req models.BatchStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		respondJSON(w, http.StatusOK, presence.BatchVisibleStatus(r.Context(), req.UserIDs, viewerID), logger)
	}
}

func HandleSetVisibility(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Context().Value(userIDKey).(int)

		var req models.VisibilityUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if err := presence.SetVisibility(r.Context(), ownerID, req.Viewers); err != nil {
			logger.Error().Err(err).Int("owner_id", ownerID).Msg("Failed to update visibility list")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		respondJSON(w, http.StatusOK, models.VisibilityList{OwnerID: ownerID, Viewers: req.Viewers}, logger)
	}
}

func HandleGetVisibility(presence service.PresenceService, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Context().Value(userIDKey).(int)

		viewers, err := presence.Visibility(r.Context(), ownerID)
		if err != nil {
			logger.Error().Err(err).Int("owner_id", ownerID).Msg("Failed to load visibility list")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		respondJSON(w, http.StatusOK, models.VisibilityList{OwnerID: ownerID, Viewers: viewers}, logger)
	}
}
