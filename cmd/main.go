package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matcha/backend/internal/api/handler"
	"matcha/backend/internal/api/middleware"
	"matcha/backend/internal/auth"
	"matcha/backend/internal/chathub"
	"matcha/backend/internal/complaint"
	"matcha/backend/internal/config"
	"matcha/backend/internal/localization"
	"matcha/backend/internal/storage"
	"matcha/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg config.Config, log *logrus.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.WithError(err).Fatal("failed to connect PostgreSQL")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect Redis")
	}

	log.Info("database and Redis connections established")
	return db, rdb
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logger configuration")
	}
	log.WithField("env", cfg.Env).Info("starting matcha realtime service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, rdb := setupDependencies(ctx, cfg, log)
	s := storage.NewStorageService(db, rdb, log)
	if err := s.Migrate(); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	if err := s.ResetPresence(ctx); err != nil {
		log.WithError(err).Warn("failed to reset presence")
	}

	loc, err := localization.New()
	if err != nil {
		log.WithError(err).Fatal("failed to load translations")
	}
	complaints := complaint.NewService(s)

	opts := chathub.Options{
		RoomMaxAge:     cfg.RoomMaxAge,
		ReaperInterval: cfg.ReaperInterval,
		StoreTimeout:   cfg.StoreTimeout,
		Complaints:     complaints,
		Localizer:      loc,
	}

	// The hub sends report alerts through the bot and the bot kicks through
	// the hub, so the bot gets its hub once both exist.
	var bot *telegram.BotService
	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = telegram.Connect(cfg.TelegramBotToken)
		if err != nil {
			log.WithError(err).Fatal("failed to start Telegram bot")
		}
		log.WithField("bot", botAPI.Self.UserName).Info("telegram moderation bot authorized")
		bot = telegram.NewBotService(botAPI, cfg.TelegramModeratorChatID, nil, complaints, log)
		opts.Notifier = bot
	}

	hub := chathub.NewHub(s, opts, log)
	go hub.Run(ctx)

	if bot != nil {
		bot.Hub = hub
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		go bot.Run(ctx, botAPI.GetUpdatesChan(u))
		defer botAPI.StopReceivingUpdates()
	}

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.LogMiddleware(log))

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AnonTokenTTL)
	h := handler.NewHandler(hub, tokens, s, loc, handler.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.ClientSendBuffer,
		StoreTimeout:   cfg.StoreTimeout,
	}, log)
	h.Register(r)

	server := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server exited")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Warn("hub did not flush in time")
	}
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("redis close")
	}
}
