package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the runtime configuration of the realtime service.
type Config struct {
	Env  string
	Addr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	AnonTokenTTL time.Duration

	RoomMaxAge       time.Duration
	ReaperInterval   time.Duration
	StoreTimeout     time.Duration
	ClientSendBuffer int
	AllowedOrigins   []string

	LogLevel  string
	LogFormat string

	TelegramBotToken        string
	TelegramModeratorChatID int64
}

const devJWTSecret = "dev-only-secret-change-me"

func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:              getenv("APP_ENV"),
		Addr:             getenv("APP_ADDR"),
		DatabaseDSN:      getenv("DATABASE_DSN"),
		RedisAddr:        getenv("REDIS_ADDR"),
		RedisPassword:    getenv("REDIS_PASSWORD"),
		JWTSecret:        getenv("JWT_SECRET"),
		LogLevel:         getenv("LOG_LEVEL"),
		LogFormat:        getenv("LOG_FORMAT"),
		TelegramBotToken: getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "host=localhost user=user password=password dbname=matchadb port=5432 sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return Config{}, errors.New("LOG_FORMAT: must be text or json")
	}

	var err error
	if cfg.RedisDB, err = intEnv(getenv, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.ClientSendBuffer, err = intEnv(getenv, "CLIENT_SEND_BUFFER", 256); err != nil {
		return Config{}, err
	}
	if cfg.ClientSendBuffer <= 0 {
		return Config{}, errors.New("CLIENT_SEND_BUFFER: must be > 0")
	}

	if cfg.AnonTokenTTL, err = durationEnv(getenv, "ANON_TOKEN_TTL", 72*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RoomMaxAge, err = durationEnv(getenv, "ROOM_MAX_AGE", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ReaperInterval, err = durationEnv(getenv, "REAPER_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = durationEnv(getenv, "STORE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	if raw := getenv("TELEGRAM_MODERATOR_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("TELEGRAM_MODERATOR_CHAT_ID: %w", err)
		}
		cfg.TelegramModeratorChatID = id
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramModeratorChatID == 0 {
		return Config{}, errors.New("TELEGRAM_MODERATOR_CHAT_ID: required when TELEGRAM_BOT_TOKEN is set")
	}

	cfg.AllowedOrigins = parseCSV(getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProd() {
			return Config{}, errors.New("JWT_SECRET: required in prod")
		}
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.IsProd() && contains(cfg.AllowedOrigins, "*") {
		return Config{}, errors.New("ALLOWED_ORIGINS: wildcard not allowed in prod")
	}

	return cfg, nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", key)
	}
	return d, nil
}

func parseCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
