package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Port       string
	DBUser     string
	DBPassword string
	DBHost     string
	DBName     string
	RedisURL   string
	JWTSecret  string
	LogLevel   string

	RelaySecret string
	RelayURIs   []string
	RelayTTL    time.Duration

	TypingTTL   time.Duration
	TypingSweep time.Duration

	AwayAfter         time.Duration
	HeartbeatInterval time.Duration
	PresenceSweep     time.Duration

	ReconnectGrace time.Duration
	QualityFloor   int

	// VisibilityOpenDefault controls what an empty visibility list
	// means: true = visible to everyone, false = visible to no one.
	VisibilityOpenDefault bool
}

func LoadConfig() *Config {
	return &Config{
		Port:       getEnv("PORT", "8081"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBName:     getEnv("DB_NAME", "chat_db"),
		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:  getEnv("JWT_SECRET", "default-secret-key"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		RelaySecret: getEnv("RELAY_SECRET", ""),
		RelayURIs:   getEnvList("RELAY_URIS", "turn:localhost:3478"),
		RelayTTL:    getEnvDuration("RELAY_TTL", 24*time.Hour),

		TypingTTL:   getEnvDuration("TYPING_TTL", 10*time.Second),
		TypingSweep: getEnvDuration("TYPING_SWEEP", 5*time.Second),

		AwayAfter:         getEnvDuration("PRESENCE_AWAY_AFTER", 5*time.Minute),
		HeartbeatInterval: getEnvDuration("PRESENCE_HEARTBEAT", 2*time.Minute),
		PresenceSweep:     getEnvDuration("PRESENCE_SWEEP", 30*time.Second),

		ReconnectGrace: getEnvDuration("CALL_RECONNECT_GRACE", 30*time.Second),
		QualityFloor:   getEnvInt("CALL_QUALITY_FLOOR", 1),

		VisibilityOpenDefault: getEnvBool("VISIBILITY_OPEN_DEFAULT", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

type Logger struct {
	zerolog.Logger
}

func SetupLogger(cfg *Config) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{logger}
}
