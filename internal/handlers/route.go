package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chatrtc/internal/service"
	"github.com/chatrtc/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func SetupRoutes(
	router *mux.Router,
	hub *websocket.Hub,
	authService service.AuthService,
	presenceService service.PresenceService,
	relayService service.RelayService,
	logger *zerolog.Logger,
) {
	authMiddleware := AuthMiddleware(authService, logger)

	router.Handle("/ws", authMiddleware(HandleWebSocket(hub, logger))).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(authMiddleware)

	apiRouter.HandleFunc("/status", HandleSetStatus(presenceService, logger)).Methods("PUT")
	apiRouter.HandleFunc("/status", HandleOwnStatus(presenceService, logger)).Methods("GET")
	apiRouter.HandleFunc("/status/batch", HandleBatchStatus(presenceService, logger)).Methods("POST")
	apiRouter.HandleFunc("/status/{userID:[0-9]+}", HandleUserStatus(presenceService, logger)).Methods("GET")
	apiRouter.HandleFunc("/visibility", HandleSetVisibility(presenceService, logger)).Methods("PUT")
	apiRouter.HandleFunc("/visibility", HandleGetVisibility(presenceService, logger)).Methods("GET")
	apiRouter.HandleFunc("/credentials", HandleRelayCredentials(relayService, logger)).Methods("GET")

	router.HandleFunc("/health", healthCheck).Methods("GET")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
