package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.TypingTTL)
	assert.Equal(t, 5*time.Second, cfg.TypingSweep)
	assert.Equal(t, 5*time.Minute, cfg.AwayAfter)
	assert.Equal(t, 2*time.Minute, cfg.HeartbeatInterval)
	assert.Equal(t, 24*time.Hour, cfg.RelayTTL)
	assert.Equal(t, 30*time.Second, cfg.ReconnectGrace)
	assert.Equal(t, 1, cfg.QualityFloor)
	assert.True(t, cfg.VisibilityOpenDefault)
	assert.Equal(t, []string{"turn:localhost:3478"}, cfg.RelayURIs)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PRESENCE_AWAY_AFTER", "90s")
	t.Setenv("CALL_QUALITY_FLOOR", "2")
	t.Setenv("VISIBILITY_OPEN_DEFAULT", "false")
	t.Setenv("RELAY_URIS", "turn:a.example.com:3478, turns:b.example.com:5349")

	cfg := LoadConfig()

	assert.Equal(t, 90*time.Second, cfg.AwayAfter)
	assert.Equal(t, 2, cfg.QualityFloor)
	assert.False(t, cfg.VisibilityOpenDefault)
	assert.Equal(t, []string{"turn:a.example.com:3478", "turns:b.example.com:5349"}, cfg.RelayURIs)
}

func TestLoadConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PRESENCE_AWAY_AFTER", "not-a-duration")
	t.Setenv("CALL_QUALITY_FLOOR", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 5*time.Minute, cfg.AwayAfter)
	assert.Equal(t, 1, cfg.QualityFloor)
}
