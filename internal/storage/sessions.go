package storage

import (
	"context"
	"fmt"
	"time"

	"matcha/backend/internal/models"

	"gorm.io/gorm"
)

// CreateSession inserts the durable record for a freshly created room.
func (s *Service) CreateSession(ctx context.Context, session *models.Session) error {
	if session.SessionType == "" {
		session.SessionType = models.SessionTypeRandom
	}
	if err := s.DB.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session %s: %w", session.RoomID, err)
	}
	return nil
}

// CloseSession stamps end time, duration and reason. Already closed sessions
// are left untouched so the first reason wins.
func (s *Service) CloseSession(ctx context.Context, roomID string, endedAt time.Time, duration time.Duration, reason string) error {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("room_id = ? AND ended_at IS NULL", roomID).
		Updates(map[string]interface{}{
			"ended_at":   endedAt,
			"duration":   int(duration / time.Second),
			"end_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("close session %s: %w", roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("close session %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// MarkFriendshipCreated flags that the session produced a friendship.
func (s *Service) MarkFriendshipCreated(ctx context.Context, roomID string) error {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("room_id = ?", roomID).
		Update("friendship_created", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) sessionID(ctx context.Context, roomID string) (uint, error) {
	var session models.Session
	err := s.DB.WithContext(ctx).Select("id").Where("room_id = ?", roomID).First(&session).Error
	if err != nil {
		return 0, notFound(err)
	}
	return session.ID, nil
}

// AppendSessionMessage stores a chat line and fills msg.ID and msg.CreatedAt.
func (s *Service) AppendSessionMessage(ctx context.Context, roomID string, msg *models.SessionMessage) error {
	id, err := s.sessionID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", roomID, err)
	}
	msg.SessionID = id
	if msg.MessageType == "" {
		msg.MessageType = "TEXT"
	}
	return s.DB.WithContext(ctx).Create(msg).Error
}

// RecordSessionMetric appends a quality measurement to the session.
func (s *Service) RecordSessionMetric(ctx context.Context, roomID string, metric *models.SessionMetric) error {
	id, err := s.sessionID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("record metric for %s: %w", roomID, err)
	}
	metric.SessionID = id
	return s.DB.WithContext(ctx).Create(metric).Error
}

// GetSessionHistory returns the session and its messages, oldest first.
func (s *Service) GetSessionHistory(ctx context.Context, roomID string) (*models.Session, []models.SessionMessage, error) {
	var session models.Session
	if err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).First(&session).Error; err != nil {
		return nil, nil, notFound(err)
	}
	var messages []models.SessionMessage
	if err := s.DB.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Order("created_at asc").
		Find(&messages).Error; err != nil {
		return nil, nil, err
	}
	return &session, messages, nil
}

// CloseOpenSessions marks every session without an end time as closed. It is
// run on shutdown and by the admin CLI.
func (s *Service) CloseOpenSessions(ctx context.Context, endedAt time.Time, reason string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Session{}).
		Where("ended_at IS NULL").
		Updates(map[string]interface{}{
			"ended_at":   endedAt,
			"end_reason": reason,
			"duration":   gorm.Expr("GREATEST(EXTRACT(EPOCH FROM (?::timestamptz - started_at))::int, 0)", endedAt),
		})
	return res.RowsAffected, res.Error
}
