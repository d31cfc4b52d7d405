package handler

import (
	"context"
	"time"

	"matcha/backend/internal/auth"
	"matcha/backend/internal/chathub"
	"matcha/backend/internal/localization"
	"matcha/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Accounts is what the handshake needs from the account store.
type Accounts interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	IsUserBanned(ctx context.Context, subjectID string) (bool, error)
}

// Options configures a Handler.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	StoreTimeout   time.Duration
}

// Handler serves the HTTP side of the realtime service.
type Handler struct {
	Hub       *chathub.Hub
	Tokens    *auth.Tokens
	Accounts  Accounts
	Localizer *localization.Localizer
	Log       *logrus.Logger

	origins      []string
	sendBuffer   int
	storeTimeout time.Duration
	upgrader     websocket.Upgrader
}

func NewHandler(hub *chathub.Hub, tokens *auth.Tokens, accounts Accounts, loc *localization.Localizer, opts Options, log *logrus.Logger) *Handler {
	h := &Handler{
		Hub:          hub,
		Tokens:       tokens,
		Accounts:     accounts,
		Localizer:    loc,
		Log:          log,
		origins:      opts.AllowedOrigins,
		sendBuffer:   opts.SendBuffer,
		storeTimeout: opts.StoreTimeout,
	}
	if h.storeTimeout <= 0 {
		h.storeTimeout = 5 * time.Second
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
}

// lang picks the response language from ?lang= or Accept-Language.
func (h *Handler) lang(c *gin.Context) string {
	if h.Localizer == nil {
		return localization.DefaultLang
	}
	return h.Localizer.Pick(c.Query("lang"), c.GetHeader("Accept-Language"))
}

// abort ends the request with an error body shaped like the realtime error
// event.
func (h *Handler) abort(c *gin.Context, status int, lang, code string) {
	msg := "error." + code
	if h.Localizer != nil {
		msg = h.Localizer.GetString(lang, msg)
	}
	c.AbortWithStatusJSON(status, models.ErrorPayload{Code: code, Message: msg})
}
