package models

import "time"

// Session types.
const (
	SessionTypeRandom = "RANDOM"
)

// End reasons recorded on a durable session.
const (
	EndReasonDisconnected = "disconnected"
	EndReasonLeft         = "left"
	EndReasonSkipped      = "skipped"
	EndReasonReported     = "reported"
	EndReasonCleanup      = "cleanup"
	EndReasonBanned       = "banned"
	EndReasonShutdown     = "shutdown"
)

// Session is the durable counterpart of an in-memory room. It outlives the
// room and is used for history and audit.
type Session struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	RoomID            string     `gorm:"uniqueIndex;not null" json:"room_id"`
	User1ID           *string    `gorm:"index" json:"user1_id,omitempty"`
	User2ID           *string    `gorm:"index" json:"user2_id,omitempty"`
	SessionType       string     `gorm:"not null;default:RANDOM" json:"session_type"`
	StartedAt         time.Time  `gorm:"not null" json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	Duration          int        `json:"duration"` // seconds
	EndReason         string     `json:"end_reason,omitempty"`
	FriendshipCreated bool       `gorm:"not null;default:false" json:"friendship_created"`
}

// TableName keeps the table name stable if the struct is renamed.
func (Session) TableName() string { return "video_sessions" }

// HasParticipant reports whether userID is one of the session's identities.
func (s *Session) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return (s.User1ID != nil && *s.User1ID == userID) || (s.User2ID != nil && *s.User2ID == userID)
}

// SessionMessage is a chat line appended to a session's message log.
type SessionMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"not null;index:idx_session_msg" json:"session_id"`
	SenderID    string    `gorm:"not null" json:"sender_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"not null;default:TEXT" json:"message_type"`
	CreatedAt   time.Time `gorm:"index:idx_session_msg" json:"created_at"`
}

func (SessionMessage) TableName() string { return "video_session_messages" }

// Metric types.
const (
	MetricConnectionQuality = "CONNECTION_QUALITY"
)

// SessionMetric is a client-reported measurement attached to a session.
type SessionMetric struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  uint      `gorm:"not null;index"`
	UserID     string    `gorm:"not null"`
	MetricType string    `gorm:"not null"`
	Value      float64   `gorm:"not null"`
	CreatedAt  time.Time
}

func (SessionMetric) TableName() string { return "video_session_metrics" }
