package models

import (
	"encoding/json"
	"time"
)

// Client -> server event types.
const (
	EventFindPartner        = "find-partner"
	EventCancelSearch       = "cancel-search"
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventOffer              = "offer"
	EventAnswer             = "answer"
	EventICECandidate       = "ice-candidate"
	EventUserInfo           = "user-info"
	EventChatMessage        = "chat-message"
	EventTyping             = "typing"
	EventSendReaction       = "send-reaction"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventConnectionQuality  = "connection-quality"
	EventGetChatHistory     = "get-chat-history"
	EventFriendRequest      = "friend-request"
	EventFriendAccept       = "friend-request-accept"
	EventFriendReject       = "friend-request-reject"
	EventReportUser         = "report-user"
)

// Server -> client event types.
const (
	EventSearching             = "searching"
	EventMatchFound            = "match-found"
	EventReady                 = "ready"
	EventPeerDisconnected      = "peer-disconnected"
	EventSessionTerminated     = "session-terminated"
	EventChatMessageSent       = "chat-message-sent"
	EventChatHistory           = "chat-history"
	EventReactionReceived      = "reaction-received"
	EventPeerScreenShareStart  = "peer-screen-share-started"
	EventPeerScreenShareStop   = "peer-screen-share-stopped"
	EventFriendRequestSent     = "friend-request-sent"
	EventFriendRequestReceived = "friend-request-received"
	EventFriendRequestAccepted = "friend-request-accepted"
	EventFriendRequestRejected = "friend-request-rejected"
	EventFriendRequestError    = "friend-request-error"
	EventReportSubmitted       = "report-submitted"
	EventFriendOnline          = "friend-online"
	EventFriendOffline         = "friend-offline"
	EventError                 = "error"
)

// Event is the single envelope exchanged over a realtime connection. Payload
// is kept raw so relayed events reach the peer byte for byte.
type Event struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id,omitempty"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an outbound event, marshalling payload when it is not nil.
func NewEvent(typ, roomID string, payload any) Event {
	ev := Event{Type: typ, RoomID: roomID}
	if payload == nil {
		return ev
	}
	if raw, ok := payload.(json.RawMessage); ok {
		ev.Payload = raw
		return ev
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// payloads are built from plain structs and maps
		data, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	ev.Payload = data
	return ev
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// MatchFoundPayload tells each participant its room and negotiation role.
type MatchFoundPayload struct {
	RoomID      string `json:"room_id"`
	IsInitiator bool   `json:"is_initiator"`
}

// PeerDisconnectedPayload is sent to the participant left behind.
type PeerDisconnectedPayload struct {
	PeerID string `json:"peer_id"`
	Reason string `json:"reason"`
}

// SessionTerminatedPayload is sent to both participants on a forced close.
type SessionTerminatedPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ChatPayload is the body of chat-message in both directions.
type ChatPayload struct {
	ID          uint      `json:"id,omitempty"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type,omitempty"`
	Sender      any       `json:"sender,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReactionPayload is relayed as reaction-received.
type ReactionPayload struct {
	Reaction     json.RawMessage `json:"reaction"`
	SenderID     string          `json:"sender_id"`
	SenderUserID string          `json:"sender_user_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// FriendRequestPayload carries friend-request, -accept and -reject.
type FriendRequestPayload struct {
	RequestID uint   `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// FriendOutcomePayload is broadcast to both participants.
type FriendOutcomePayload struct {
	RequestID         uint   `json:"request_id,omitempty"`
	Message           string `json:"message"`
	FriendshipCreated bool   `json:"friendship_created"`
}

// ReportPayload is the body of report-user.
type ReportPayload struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// QualityPayload is the body of connection-quality.
type QualityPayload struct {
	Quality float64 `json:"quality"`
}

// PresencePayload is sent to friends on (dis)connect.
type PresencePayload struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatHistoryPayload answers get-chat-history.
type ChatHistoryPayload struct {
	RoomID    string           `json:"room_id"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
	Duration  int              `json:"duration"`
	Messages  []SessionMessage `json:"messages"`
}
