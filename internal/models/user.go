package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is the account record owned by the account store. The realtime service
// only reads it, except for presence, reputation and ban fields.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"uniqueIndex" json:"username"`
	Nickname    string         `json:"nickname"`
	FirstName   string         `json:"first_name"`
	PhotoURL    string         `json:"photo_url"`
	Interests   pq.StringArray `gorm:"type:text[]" json:"interests"`
	IsOnline    bool           `json:"is_online"`
	LastSeenAt  *time.Time     `json:"last_seen_at"`
	Reputation  int            `gorm:"default:1000" json:"-"`
	IsBlocked   bool           `json:"-"`
	BlockLevel  int            `json:"-"`
	BlockEndsAt *time.Time     `json:"-"`
	LastBanAt   *time.Time     `json:"-"`
}

// BeforeCreate generates a UUID for the user if ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// DisplayName is what peers see: nickname, then first name, then username.
func (u *User) DisplayName() string {
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// Profile builds the cached summary attached to a live connection.
func (u *User) Profile() ProfileSummary {
	return ProfileSummary{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		PhotoURL:    u.PhotoURL,
		Interests:   []string(u.Interests),
	}
}

// ProfileSummary is the small, immutable view of a user kept on a connection.
type ProfileSummary struct {
	UserID      string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	PhotoURL    string   `json:"photo_url,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}
