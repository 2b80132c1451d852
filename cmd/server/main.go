package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatrtc/internal/config"
	"github.com/chatrtc/internal/handlers"
	"github.com/chatrtc/internal/repository"
	"github.com/chatrtc/internal/service"
	"github.com/chatrtc/internal/websocket"
	"github.com/chatrtc/pkg/jwt"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.LoadConfig()
	logger := config.SetupLogger(cfg)

	db, err := setupDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	rdb, err := setupRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	socialRepo := repository.NewSocialRepository(db, &logger.Logger)
	visibilityRepo := repository.NewVisibilityRepository(db, &logger.Logger)
	presenceRepo := repository.NewPresenceRepository(rdb, &logger.Logger)

	jwtService := jwt.NewJWTService(cfg.JWTSecret)
	authService := service.NewAuthService(jwtService)

	relayService, err := service.NewRelayService(cfg.RelaySecret, cfg.RelayURIs, cfg.RelayTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Relay credential issuer unavailable")
	}

	typingService := service.NewTypingService(cfg.TypingTTL, cfg.TypingSweep, &logger.Logger)
	presenceService := service.NewPresenceService(presenceRepo, visibilityRepo, service.PresencePolicy{
		AwayAfter:         cfg.AwayAfter,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SweepInterval:     cfg.PresenceSweep,
		OpenVisibility:    cfg.VisibilityOpenDefault,
	}, &logger.Logger)

	signalGate := service.NewSignalGate(socialRepo, &logger.Logger)
	callService := service.NewCallService(signalGate, service.CallPolicy{
		ReconnectGrace: cfg.ReconnectGrace,
		QualityFloor:   cfg.QualityFloor,
	}, &logger.Logger)

	hub := websocket.NewHub(presenceService, typingService, callService, &logger.Logger)

	typingService.Start()
	presenceService.Start()
	callService.Start()
	go hub.Run()

	router := mux.NewRouter()
	router.Use(handlers.LoggingMiddleware(&logger.Logger))

	handlers.SetupRoutes(router, hub, authService, presenceService, relayService, &logger.Logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	gracefulShutdown(server, hub, typingService, presenceService, callService, &logger.Logger)
}

func setupDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:3306)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

func setupRedis(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

func gracefulShutdown(
	server *http.Server,
	hub *websocket.Hub,
	typingService service.TypingService,
	presenceService service.PresenceService,
	callService service.CallService,
	logger *zerolog.Logger,
) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down server...")

	hub.Shutdown()
	typingService.Stop()
	presenceService.Stop()
	callService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	logger.Info().Msg("Server stopped")
}
