package handler

import (
	"context"
	"errors"
	"net/http"

	"matcha/backend/internal/api/middleware"
	"matcha/backend/internal/chathub"
	"matcha/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ServeWebSocket resolves the caller's identity, upgrades the connection and
// hands it to the hub. No token means a fully anonymous connection.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	lang := h.lang(c)
	conn := &chathub.Connection{ID: uuid.NewString(), Lang: lang}

	if raw := requestToken(c); raw != "" {
		id, err := h.Tokens.Parse(raw)
		if err != nil {
			h.Log.WithError(err).Debug("rejecting websocket token")
			h.abort(c, http.StatusUnauthorized, lang, "invalid_token")
			return
		}
		conn.UserID, conn.AnonID = id.UserID, id.AnonID
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	if conn.UserID != "" {
		user, err := h.Accounts.GetUserByID(ctx, conn.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			h.abort(c, http.StatusUnauthorized, lang, "invalid_token")
			return
		case err != nil:
			h.Log.WithError(err).WithField("user_id", conn.UserID).Error("failed to load user")
			h.abort(c, http.StatusServiceUnavailable, lang, "store_failure")
			return
		}
		profile := user.Profile()
		conn.Profile = &profile
	}

	if subject := subjectOf(conn); subject != "" {
		banned, err := h.Accounts.IsUserBanned(ctx, subject)
		if err != nil {
			h.Log.WithError(err).WithField("subject_id", subject).Warn("ban check failed, letting connection through")
		}
		if banned {
			h.abort(c, http.StatusForbidden, lang, "banned")
			return
		}
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(conn.ID, ws, h.Hub, h.sendBuffer)
	conn.Client = client
	if err := h.Hub.Register(conn); err != nil {
		ws.Close()
		return
	}
	middleware.LogWebSocketConnect(h.Log, c.Request.RemoteAddr, conn.ID, logrus.Fields{
		"user_id": conn.UserID,
		"anon_id": conn.AnonID,
		"lang":    lang,
	})

	client.Run()
}

func subjectOf(c *chathub.Connection) string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.AnonID
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.Log.WithField("origin", origin).Warn("websocket origin refused")
	return false
}
