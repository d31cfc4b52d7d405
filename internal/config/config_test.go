package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.RoomMaxAge)
	assert.Equal(t, 5*time.Minute, cfg.ReaperInterval)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 256, cfg.ClientSendBuffer)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	cfg, err := LoadFromEnv(envMap(map[string]string{
		"APP_ENV":                    "prod",
		"JWT_SECRET":                 "s3cret",
		"ALLOWED_ORIGINS":            "https://a.example, https://b.example",
		"ROOM_MAX_AGE":               "10m",
		"REAPER_INTERVAL":            "30s",
		"REDIS_DB":                   "3",
		"LOG_FORMAT":                 "json",
		"TELEGRAM_BOT_TOKEN":         "tok",
		"TELEGRAM_MODERATOR_CHAT_ID": "-100123",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Minute, cfg.RoomMaxAge)
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, int64(-100123), cfg.TelegramModeratorChatID)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad env", map[string]string{"APP_ENV": "staging"}},
		{"prod without secret", map[string]string{"APP_ENV": "prod", "ALLOWED_ORIGINS": "https://a.example"}},
		{"prod wildcard origin", map[string]string{"APP_ENV": "prod", "JWT_SECRET": "x"}},
		{"bad duration", map[string]string{"ROOM_MAX_AGE": "soon"}},
		{"non positive duration", map[string]string{"REAPER_INTERVAL": "0s"}},
		{"bad int", map[string]string{"REDIS_DB": "one"}},
		{"zero buffer", map[string]string{"CLIENT_SEND_BUFFER": "0"}},
		{"bot without chat", map[string]string{"TELEGRAM_BOT_TOKEN": "tok"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := LoadFromEnv(envMap(map[string]string{"LOG_LEVEL": "debug", "LOG_FORMAT": "json"}))
	require.NoError(t, err)

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.LogLevel = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}
