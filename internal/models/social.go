package models

import "time"

// FriendRequest statuses.
const (
	FriendRequestPending  = "PENDING"
	FriendRequestAccepted = "ACCEPTED"
	FriendRequestRejected = "REJECTED"
)

// FriendRequest is one direction of a friending attempt.
type FriendRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SenderID    string     `gorm:"not null;index" json:"sender_id"`
	ReceiverID  string     `gorm:"not null;index" json:"receiver_id"`
	Status      string     `gorm:"not null;default:PENDING" json:"status"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// Friendship is a single undirected edge. UserID is always the smaller id.
type Friendship struct {
	UserID    string `gorm:"primaryKey"`
	FriendID  string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// NewFriendship orders the pair so that one edge exists per couple.
func NewFriendship(a, b string) Friendship {
	if b < a {
		a, b = b, a
	}
	return Friendship{UserID: a, FriendID: b}
}

// Notification types.
const (
	NotificationFriendRequest = "FRIEND_REQUEST"
)

// Notification is a durable inbox entry for a user.
type Notification struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Title     string
	Message   string
	Data      string `gorm:"type:text"` // JSON
	IsRead    bool
	CreatedAt time.Time
}

// Report contexts.
const (
	ReportContextVideoChat = "VIDEO_CHAT"
)

// Report statuses.
const (
	ReportStatusNew       = "new"
	ReportStatusConfirmed = "confirmed"
)

// Report is an abuse report filed from inside a session. Reporter and
// reported user ids are empty for anonymous participants; anonymous ids are
// kept instead so bans can still be applied.
type Report struct {
	ID             uint   `gorm:"primaryKey"`
	ReporterID     string `gorm:"index"`
	ReportedID     string `gorm:"index"`
	ReporterAnonID string
	ReportedAnonID string
	RoomID         string `gorm:"index"`
	Reason         string `gorm:"not null"`
	Details        string `gorm:"type:text"`
	Context        string `gorm:"not null;default:VIDEO_CHAT"`
	Status         string `gorm:"not null;default:new"`
	CreatedAt      time.Time
}
