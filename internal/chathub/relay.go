package chathub

import (
	"strings"

	"matcha/backend/internal/models"

	"github.com/sirupsen/logrus"
)

var relayedAs = map[string]string{
	models.EventScreenShareStarted: models.EventPeerScreenShareStart,
	models.EventScreenShareStopped: models.EventPeerScreenShareStop,
}

// relay forwards ev to the sender's peer unchanged apart from the sender tag.
// Events from connections outside the room are dropped without a reply.
func (h *Hub) relay(c *Connection, ev models.Event) {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil {
		h.Log.WithField("conn_id", c.ID).WithError(err).Debug("dropping relay")
		return
	}
	out := models.Event{
		Type:     ev.Type,
		RoomID:   room.ID,
		SenderID: c.ID,
		Payload:  ev.Payload,
	}
	if typ, ok := relayedAs[ev.Type]; ok {
		out.Type = typ
	}

	switch ev.Type {
	case models.EventSendReaction:
		out = models.NewEvent(models.EventReactionReceived, room.ID, models.ReactionPayload{
			Reaction:     ev.Payload,
			SenderID:     c.ID,
			SenderUserID: c.UserID,
			Timestamp:    h.now(),
		})
		out.SenderID = c.ID
	case models.EventUserInfo:
		room.Revealed[c.ID] = true
		if len(ev.Payload) == 0 && c.Profile != nil {
			out = models.NewEvent(models.EventUserInfo, room.ID, c.Profile)
			out.SenderID = c.ID
		}
	}
	h.send(room.Peer(c.ID), out)
}

// chat relays a chat line live and, when both sides have accounts, appends it
// to the session log and acknowledges it to the sender.
func (h *Hub) chat(c *Connection, ev models.Event) error {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil {
		h.Log.WithField("conn_id", c.ID).WithError(err).Debug("dropping chat message")
		return nil
	}
	var in models.ChatPayload
	if err := ev.Decode(&in); err != nil {
		return ErrInvalidEvent
	}
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return ErrInvalidEvent
	}

	now := h.now()
	out := models.ChatPayload{
		Message:     text,
		MessageType: in.MessageType,
		Timestamp:   now,
	}
	if c.Profile != nil && room.Revealed[c.ID] {
		out.Sender = c.Profile
	}
	msg := models.NewEvent(models.EventChatMessage, room.ID, out)
	msg.SenderID = c.ID
	h.send(room.Peer(c.ID), msg)

	if !room.BothAuthenticated() {
		return nil
	}
	record := &models.SessionMessage{
		SenderID:    c.UserID,
		Content:     text,
		MessageType: in.MessageType,
		CreatedAt:   now,
	}
	roomID := room.ID
	log := h.Log.WithFields(logrus.Fields{"conn_id": c.ID, "room_id": roomID})
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		err := h.Storage.AppendSessionMessage(ctx, roomID, record)
		return func() {
			if err != nil {
				log.WithError(err).Warn("failed to store chat message")
				return
			}
			h.send(c, models.NewEvent(models.EventChatMessageSent, roomID, models.ChatPayload{
				ID:          record.ID,
				Message:     record.Content,
				MessageType: record.MessageType,
				Timestamp:   record.CreatedAt,
			}))
		}
	})
	return nil
}

// recordQuality appends a connection quality sample to the session. Samples
// from anonymous connections are ignored.
func (h *Hub) recordQuality(c *Connection, ev models.Event) {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil || !c.Authenticated() {
		return
	}
	var in models.QualityPayload
	if err := ev.Decode(&in); err != nil {
		return
	}
	metric := &models.SessionMetric{
		UserID:     c.UserID,
		MetricType: models.MetricConnectionQuality,
		Value:      in.Quality,
		CreatedAt:  h.now(),
	}
	roomID := room.ID
	log := h.Log.WithField("room_id", roomID)
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		if err := h.Storage.RecordSessionMetric(ctx, roomID, metric); err != nil {
			return func() { log.WithError(err).Warn("failed to record connection quality") }
		}
		return nil
	})
}

// chatHistory returns the stored messages of a session the caller took part
// in. It works for rooms that are already closed.
func (h *Hub) chatHistory(c *Connection, ev models.Event) error {
	if !c.Authenticated() {
		return ErrAuthenticationRequired
	}
	roomID := ev.RoomID
	if roomID == "" {
		roomID = h.roomOf[c.ID]
	}
	if roomID == "" {
		return ErrRoomNotFound
	}
	userID := c.UserID
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		session, messages, err := h.Storage.GetSessionHistory(ctx, roomID)
		return func() {
			switch {
			case err != nil:
				h.sendError(c, models.EventError, mapStoreErr(err, ErrRoomNotFound))
			case !session.HasParticipant(userID):
				h.sendError(c, models.EventError, ErrUnauthorized)
			default:
				if messages == nil {
					messages = []models.SessionMessage{}
				}
				h.send(c, models.NewEvent(models.EventChatHistory, roomID, models.ChatHistoryPayload{
					RoomID:    roomID,
					StartedAt: session.StartedAt,
					EndedAt:   session.EndedAt,
					Duration:  session.Duration,
					Messages:  messages,
				}))
			}
		}
	})
	return nil
}
