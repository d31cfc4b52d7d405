// Package storage is the durable side of the realtime service: session
// records and their message logs in PostgreSQL (through gorm), friend
// requests and friendships, abuse reports, and the presence and ban flags
// kept in Redis.
package storage

import (
	"context"
	"errors"
	"time"

	"matcha/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not_found")
	ErrAlreadyFriends = errors.New("already_friends")
	ErrRequestExists  = errors.New("request_exists")
)

// SessionStore persists the durable counterpart of rooms.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	CloseSession(ctx context.Context, roomID string, endedAt time.Time, duration time.Duration, reason string) error
	MarkFriendshipCreated(ctx context.Context, roomID string) error
	AppendSessionMessage(ctx context.Context, roomID string, msg *models.SessionMessage) error
	RecordSessionMetric(ctx context.Context, roomID string, metric *models.SessionMetric) error
	GetSessionHistory(ctx context.Context, roomID string) (*models.Session, []models.SessionMessage, error)
	CloseOpenSessions(ctx context.Context, endedAt time.Time, reason string) (int64, error)
}

// FriendRequestResult is the outcome of SendFriendRequest. AutoAccepted is
// set when a reverse pending request existed and was accepted instead.
type FriendRequestResult struct {
	Request      *models.FriendRequest
	AutoAccepted bool
}

// AccountStore is the part of the account/social store the realtime service
// consumes.
type AccountStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
	SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error
	SendFriendRequest(ctx context.Context, senderID, receiverID, message string) (*FriendRequestResult, error)
	AcceptFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error)
}

// ModerationStore keeps reports, reputation and bans.
type ModerationStore interface {
	SaveReport(ctx context.Context, report *models.Report) error
	GetReportByID(ctx context.Context, id uint) (*models.Report, error)
	MarkReportConfirmed(ctx context.Context, id uint) error
	CountReportsSince(ctx context.Context, reportedID string, since time.Time) (int64, error)
	UpdateUserReputation(ctx context.Context, userID string, delta int) error
	UpdateUser(ctx context.Context, user *models.User) error
	SetBan(ctx context.Context, subjectID string, d time.Duration) error
	ClearBan(ctx context.Context, subjectID string) error
	IsUserBanned(ctx context.Context, subjectID string) (bool, error)
}

// Storage is everything the service needs from persistence.
type Storage interface {
	SessionStore
	AccountStore
	ModerationStore
}

const (
	presenceSetKey      = "presence:online"
	presenceChannelName = "presence:events"
	banKeyPrefix        = "ban:"
)

// Service implements Storage on top of gorm and go-redis. Redis may be nil
// (admin CLI); presence and ban flags then fall back to the database only.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Log   *logrus.Entry
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, log *logrus.Logger) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Log:   log.WithField("component", "storage"),
	}
}

// Migrate creates or updates every table the service owns.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.SessionMessage{},
		&models.SessionMetric{},
		&models.FriendRequest{},
		&models.Friendship{},
		&models.Notification{},
		&models.Report{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
