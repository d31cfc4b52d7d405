package chathub

import (
	"errors"
	"time"

	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"

	"github.com/sirupsen/logrus"
)

// RoomState is the lifecycle stage of a room.
type RoomState int

const (
	RoomCreated RoomState = iota
	RoomJoined
	RoomReady
	RoomClosing
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomCreated:
		return "created"
	case RoomJoined:
		return "joined"
	case RoomReady:
		return "ready"
	case RoomClosing:
		return "closing"
	case RoomClosed:
		return "closed"
	}
	return "unknown"
}

type sessionState int

const (
	sessionPending sessionState = iota
	sessionStored
	sessionFailed
)

type closeRequest struct {
	endedAt  time.Time
	duration time.Duration
	reason   string
}

// FriendStatus is the state of the in-call friend request of a room.
type FriendStatus int

const (
	FriendPending FriendStatus = iota
	FriendAccepted
	FriendRejected
)

// FriendRequestState tracks the friend request made during one room.
// InFlight is set while a store call for it is running; CrossedBy holds the
// connection whose reverse request arrived meanwhile.
type FriendRequestState struct {
	SenderConnID   string
	SenderUserID   string
	ReceiverUserID string
	RequestID      uint
	Status         FriendStatus
	InFlight       bool
	CrossedBy      string
}

// Room is one paired session between two connections.
type Room struct {
	ID           string
	Participants [2]*Connection
	Initiator    string
	CreatedAt    time.Time
	State        RoomState
	Revealed     map[string]bool
	Friend       *FriendRequestState

	joined            map[string]bool
	session           sessionState
	pending           *closeRequest
	friendshipPending bool
}

func newRoom(id string, a, b *Connection, initiator string, now time.Time) *Room {
	return &Room{
		ID:           id,
		Participants: [2]*Connection{a, b},
		Initiator:    initiator,
		CreatedAt:    now,
		State:        RoomCreated,
		Revealed:     make(map[string]bool),
		joined:       make(map[string]bool),
	}
}

// Has reports whether connID is one of the two participants.
func (r *Room) Has(connID string) bool {
	return r.Participants[0].ID == connID || r.Participants[1].ID == connID
}

// Peer returns the other participant, or nil if connID is not in the room.
func (r *Room) Peer(connID string) *Connection {
	switch connID {
	case r.Participants[0].ID:
		return r.Participants[1]
	case r.Participants[1].ID:
		return r.Participants[0]
	}
	return nil
}

func (r *Room) Participant(connID string) *Connection {
	for _, p := range r.Participants {
		if p.ID == connID {
			return p
		}
	}
	return nil
}

// Join subscribes a participant. ready is true on the transition to
// RoomReady; repeat is true when connID had already joined.
func (r *Room) Join(connID string) (ready, repeat bool, err error) {
	if r.State >= RoomClosing {
		return false, false, ErrRoomNotFound
	}
	if !r.Has(connID) {
		return false, false, ErrUnauthorized
	}
	if r.joined[connID] {
		return false, true, nil
	}
	r.joined[connID] = true
	if len(r.joined) == 2 {
		r.State = RoomReady
		return true, false, nil
	}
	r.State = RoomJoined
	return false, false, nil
}

func (r *Room) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// BothAuthenticated reports whether both participants carry an account.
func (r *Room) BothAuthenticated() bool {
	return r.Participants[0].Authenticated() && r.Participants[1].Authenticated()
}

func (r *Room) live() bool { return r.State < RoomClosing }

// participantRoom resolves the room an event refers to. An empty roomID means
// the connection's current room.
func (h *Hub) participantRoom(c *Connection, roomID string) (*Room, error) {
	if roomID == "" {
		roomID = h.roomOf[c.ID]
	}
	room, ok := h.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.Has(c.ID) {
		return nil, ErrUnauthorized
	}
	return room, nil
}

func (h *Hub) joinRoom(c *Connection, roomID string) error {
	room, ok := h.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	ready, repeat, err := room.Join(c.ID)
	if err != nil {
		h.Log.WithFields(logrus.Fields{"conn_id": c.ID, "room_id": roomID}).Warn("rejected room join")
		return err
	}
	switch {
	case ready:
		for _, p := range room.Participants {
			h.sendReady(room, p)
		}
	case repeat && room.State == RoomReady:
		h.sendReady(room, c)
	}
	return nil
}

func (h *Hub) sendReady(room *Room, c *Connection) {
	h.send(c, models.NewEvent(models.EventReady, room.ID, models.MatchFoundPayload{
		RoomID:      room.ID,
		IsInitiator: c.ID == room.Initiator,
	}))
}

func (h *Hub) leaveRoom(c *Connection, roomID string) error {
	room, err := h.participantRoom(c, roomID)
	if err != nil {
		return err
	}
	h.teardown(room.ID, models.EndReasonLeft, c.ID)
	return nil
}

// teardown closes a room. For departures (disconnect, leave, skip) the peer of
// byConnID gets peer-disconnected; forced closes notify both participants with
// session-terminated. Tearing down a closed or unknown room is a no-op.
func (h *Hub) teardown(roomID, reason, byConnID string) {
	room, ok := h.rooms[roomID]
	if !ok || !room.live() {
		return
	}
	room.State = RoomClosing
	delete(h.rooms, roomID)
	for _, p := range room.Participants {
		if h.roomOf[p.ID] == roomID {
			delete(h.roomOf, p.ID)
		}
	}

	switch reason {
	case models.EndReasonDisconnected, models.EndReasonLeft, models.EndReasonSkipped:
		if peer := room.Peer(byConnID); peer != nil {
			h.send(peer, models.NewEvent(models.EventPeerDisconnected, roomID, models.PeerDisconnectedPayload{
				PeerID: byConnID,
				Reason: reason,
			}))
		}
	default:
		for _, p := range room.Participants {
			h.send(p, models.NewEvent(models.EventSessionTerminated, roomID, models.SessionTerminatedPayload{
				Reason:  reason,
				Message: h.text(p.Lang, "session."+reason),
			}))
		}
	}
	room.State = RoomClosed

	now := h.now()
	h.Log.WithFields(logrus.Fields{"room_id": roomID, "reason": reason}).Info("room closed")
	if h.flushing {
		return
	}
	h.closeSession(room, closeRequest{endedAt: now, duration: now.Sub(room.CreatedAt), reason: reason})
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func (h *Hub) createSession(room *Room) {
	session := &models.Session{
		RoomID:      room.ID,
		User1ID:     optionalID(room.Participants[0].UserID),
		User2ID:     optionalID(room.Participants[1].UserID),
		SessionType: models.SessionTypeRandom,
		StartedAt:   room.CreatedAt,
	}
	log := h.Log.WithField("room_id", room.ID)
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		err := h.Storage.CreateSession(ctx, session)
		return func() {
			if err != nil {
				room.session = sessionFailed
				log.WithError(err).Warn("failed to create session record")
				return
			}
			room.session = sessionStored
			if room.friendshipPending {
				room.friendshipPending = false
				h.markFriendship(room)
			}
			if room.pending != nil {
				req := *room.pending
				room.pending = nil
				h.closeSession(room, req)
			}
		}
	})
}

// closeSession stamps the durable record. If the record is still being
// created the close is parked until creation completes.
func (h *Hub) closeSession(room *Room, req closeRequest) {
	switch room.session {
	case sessionFailed:
		return
	case sessionPending:
		room.pending = &req
		return
	}
	log := h.Log.WithField("room_id", room.ID)
	h.spawn(func() func() {
		ctx, cancel := h.storeContext()
		defer cancel()
		err := h.Storage.CloseSession(ctx, room.ID, req.endedAt, req.duration, req.reason)
		if err == nil {
			return nil
		}
		return func() {
			if errors.Is(err, storage.ErrNotFound) {
				log.Debug("session already closed")
				return
			}
			log.WithError(err).Warn("failed to close session record")
		}
	})
}
