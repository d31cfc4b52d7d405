package chathub

import (
	"time"

	"matcha/backend/internal/models"
)

// publishPresence records an account's online status and tells its friends
// that are connected right now. Runs in order of (dis)connects.
func (h *Hub) publishPresence(userID string, online bool) {
	at := h.now()
	log := h.Log.WithField("user_id", userID)
	h.spawnOrdered(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		if err := h.Storage.SetOnlineStatus(ctx, userID, online, at); err != nil {
			log.WithError(err).Warn("failed to update online status")
		}
		friends, err := h.Storage.GetFriendIDs(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("failed to load friends for presence")
			return nil
		}
		return func() { h.notifyFriends(userID, friends, online, at) }
	})
}

func (h *Hub) notifyFriends(userID string, friends []string, online bool, at time.Time) {
	typ := models.EventFriendOffline
	if online {
		typ = models.EventFriendOnline
	}
	ev := models.NewEvent(typ, "", models.PresencePayload{UserID: userID, Online: online, LastSeen: at})
	for _, friendID := range friends {
		for _, c := range h.registry.UserConnections(friendID) {
			h.send(c, ev)
		}
	}
}

// queuePresence hands task to the presence worker so status writes land in
// the order connections came and went.
func (h *Hub) queuePresence(task func() func()) {
	select {
	case h.presence <- func() {
		if done := task(); done != nil {
			h.post(done)
		}
	}:
	default:
		h.Log.Warn("presence queue full, dropping update")
	}
}

func (h *Hub) runPresence() {
	for {
		select {
		case task := <-h.presence:
			task()
		case <-h.done:
			return
		}
	}
}
