package chathub

import (
	"errors"
	"strings"

	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// mapStoreErr turns a store error into a client error. notFound is what
// storage.ErrNotFound means for the caller.
func mapStoreErr(err, notFound error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return notFound
	case errors.Is(err, storage.ErrAlreadyFriends):
		return ErrAlreadyFriends
	case errors.Is(err, storage.ErrRequestExists):
		return ErrAlreadyInProgress
	}
	return ErrStoreFailure
}

func displayName(c *Connection) string {
	if c.Profile != nil && c.Profile.DisplayName != "" {
		return c.Profile.DisplayName
	}
	return "Someone"
}

// friendRequest starts the in-call friend request flow. A request that
// crosses one from the peer becomes an acceptance of the peer's request.
func (h *Hub) friendRequest(c *Connection, ev models.Event) error {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil {
		return err
	}
	if !c.Authenticated() {
		return ErrAuthenticationRequired
	}
	peer := room.Peer(c.ID)
	if !peer.Authenticated() {
		return ErrPeerAnonymous
	}
	if peer.UserID == c.UserID {
		return ErrAlreadyFriends
	}
	var in models.FriendRequestPayload
	if err := ev.Decode(&in); err != nil {
		return ErrInvalidEvent
	}

	if st := room.Friend; st != nil && st.Status != FriendRejected {
		switch {
		case st.Status == FriendAccepted:
			return ErrAlreadyFriends
		case st.SenderUserID == c.UserID:
			return ErrAlreadyInProgress
		case st.InFlight:
			if st.CrossedBy != "" {
				return ErrAlreadyInProgress
			}
			st.CrossedBy = c.ID
			return nil
		}
	}
	h.sendFriendRequest(room, c, strings.TrimSpace(in.Message))
	return nil
}

func (h *Hub) sendFriendRequest(room *Room, c *Connection, message string) {
	peer := room.Peer(c.ID)
	st := &FriendRequestState{
		SenderConnID:   c.ID,
		SenderUserID:   c.UserID,
		ReceiverUserID: peer.UserID,
		Status:         FriendPending,
		InFlight:       true,
	}
	room.Friend = st
	senderID, receiverID := c.UserID, peer.UserID
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		res, err := h.Storage.SendFriendRequest(ctx, senderID, receiverID, message)
		return func() { h.friendRequestStored(room, st, c, res, err) }
	})
}

func (h *Hub) friendRequestStored(room *Room, st *FriendRequestState, c *Connection, res *storage.FriendRequestResult, err error) {
	st.InFlight = false
	log := h.Log.WithFields(logrus.Fields{"room_id": room.ID, "user_id": st.SenderUserID})

	switch {
	case err != nil:
		switch {
		case errors.Is(err, storage.ErrAlreadyFriends):
			st.Status = FriendAccepted
		case errors.Is(err, storage.ErrRequestExists):
		default:
			log.WithError(err).Error("failed to store friend request")
			room.Friend = nil
		}
		if room.live() {
			h.sendError(c, models.EventFriendRequestError, mapStoreErr(err, ErrRequestNotFound))
		}
	case res.AutoAccepted:
		h.friendAccepted(room, res.Request)
		return
	default:
		st.RequestID = res.Request.ID
		if room.live() {
			h.send(c, models.NewEvent(models.EventFriendRequestSent, room.ID, models.FriendRequestPayload{
				RequestID: st.RequestID,
				Message:   h.text(c.Lang, "friend.request_sent"),
			}))
			peer := room.Peer(c.ID)
			received := models.NewEvent(models.EventFriendRequestReceived, room.ID, models.FriendRequestPayload{
				RequestID: st.RequestID,
				Message:   h.format(peer.Lang, "friend.request_received", "name", displayName(c)),
			})
			received.SenderID = c.ID
			h.send(peer, received)
		}
	}

	crossed := st.CrossedBy
	st.CrossedBy = ""
	if crossed == "" || st.Status != FriendPending || !room.live() {
		return
	}
	if p := room.Participant(crossed); p != nil && p.alive {
		h.sendFriendRequest(room, p, "")
	}
}

// respondFriendRequest accepts or rejects the pending request addressed to c.
func (h *Hub) respondFriendRequest(c *Connection, ev models.Event, accept bool) error {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil {
		return err
	}
	if !c.Authenticated() {
		return ErrAuthenticationRequired
	}
	var in models.FriendRequestPayload
	if err := ev.Decode(&in); err != nil {
		return ErrInvalidEvent
	}
	st := room.Friend
	if st == nil || st.Status != FriendPending || st.ReceiverUserID != c.UserID {
		return ErrRequestNotFound
	}
	if st.InFlight {
		return ErrAlreadyInProgress
	}
	requestID := st.RequestID
	if requestID == 0 {
		requestID = in.RequestID
	}
	if requestID == 0 || (in.RequestID != 0 && in.RequestID != requestID) {
		return ErrRequestNotFound
	}

	st.InFlight = true
	userID := c.UserID
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		var req *models.FriendRequest
		var err error
		if accept {
			req, err = h.Storage.AcceptFriendRequest(ctx, requestID, userID)
		} else {
			req, err = h.Storage.RejectFriendRequest(ctx, requestID, userID)
		}
		return func() {
			st.InFlight = false
			switch {
			case err != nil:
				if !errors.Is(err, storage.ErrNotFound) {
					h.Log.WithField("room_id", room.ID).WithError(err).Error("failed to answer friend request")
				}
				if room.live() {
					h.sendError(c, models.EventFriendRequestError, mapStoreErr(err, ErrRequestNotFound))
				}
			case accept:
				h.friendAccepted(room, req)
			default:
				st.Status = FriendRejected
				h.broadcastOutcome(room, models.EventFriendRequestRejected, req.ID, "friend.rejected", false)
			}
		}
	})
	return nil
}

// friendAccepted resolves the room's request as accepted, tells both
// participants and flags the session as having produced a friendship.
func (h *Hub) friendAccepted(room *Room, req *models.FriendRequest) {
	st := room.Friend
	if st == nil {
		st = &FriendRequestState{SenderUserID: req.SenderID, ReceiverUserID: req.ReceiverID}
		room.Friend = st
	}
	st.Status = FriendAccepted
	st.RequestID = req.ID
	st.InFlight = false
	st.CrossedBy = ""

	h.broadcastOutcome(room, models.EventFriendRequestAccepted, req.ID, "friend.accepted", true)
	h.markFriendship(room)
}

func (h *Hub) broadcastOutcome(room *Room, typ string, requestID uint, key string, created bool) {
	if !room.live() {
		return
	}
	for _, p := range room.Participants {
		h.send(p, models.NewEvent(typ, room.ID, models.FriendOutcomePayload{
			RequestID:         requestID,
			Message:           h.text(p.Lang, key),
			FriendshipCreated: created,
		}))
	}
}

func (h *Hub) markFriendship(room *Room) {
	switch room.session {
	case sessionFailed:
		return
	case sessionPending:
		room.friendshipPending = true
		return
	}
	roomID := room.ID
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		if err := h.Storage.MarkFriendshipCreated(ctx, roomID); err != nil {
			return func() {
				h.Log.WithField("room_id", roomID).WithError(err).Warn("failed to flag friendship on session")
			}
		}
		return nil
	})
}

// report ends the room at once and stores the report afterwards. The room is
// closed whatever happens to the write.
func (h *Hub) report(c *Connection, ev models.Event) error {
	room, err := h.participantRoom(c, ev.RoomID)
	if err != nil {
		return err
	}
	var in models.ReportPayload
	if err := ev.Decode(&in); err != nil {
		return ErrInvalidEvent
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return ErrInvalidEvent
	}
	peer := room.Peer(c.ID)
	report := &models.Report{
		ReporterID:     c.UserID,
		ReportedID:     peer.UserID,
		ReporterAnonID: c.AnonID,
		ReportedAnonID: peer.AnonID,
		RoomID:         room.ID,
		Reason:         reason,
		Details:        strings.TrimSpace(in.Details),
		Context:        models.ReportContextVideoChat,
		Status:         models.ReportStatusNew,
	}

	h.teardown(room.ID, models.EndReasonReported, c.ID)
	h.send(c, models.NewEvent(models.EventReportSubmitted, report.RoomID, models.SessionTerminatedPayload{
		Reason:  models.EndReasonReported,
		Message: h.text(c.Lang, "report.submitted"),
	}))
	h.saveReport(report)
	return nil
}

func (h *Hub) saveReport(report *models.Report) {
	log := h.Log.WithFields(logrus.Fields{"room_id": report.RoomID, "reason": report.Reason})
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		if err := h.Storage.SaveReport(ctx, report); err != nil {
			return func() { log.WithError(err).Error("failed to store report") }
		}
		if h.Notifier != nil {
			if err := h.Notifier.NotifyReport(ctx, report); err != nil {
				log.WithError(err).Warn("failed to notify moderators")
			}
		}
		if h.Complaints == nil {
			return nil
		}
		ban, err := h.Complaints.HandleReport(ctx, report)
		return func() {
			if err != nil {
				log.WithError(err).Error("failed to apply report consequences")
			}
			if ban != nil {
				log.WithFields(logrus.Fields{"subject": ban.SubjectID, "until": ban.Until}).Warn("subject banned")
				h.kick(ban.SubjectID)
			}
		}
	})
}
