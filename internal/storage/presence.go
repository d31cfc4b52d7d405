package storage

import (
	"context"
	"encoding/json"
	"time"

	"matcha/backend/internal/models"
)

// SetOnlineStatus updates the account's presence fields, keeps the Redis
// online set in sync and publishes the change on the presence channel for
// other consumers.
func (s *Service) SetOnlineStatus(ctx context.Context, userID string, online bool, at time.Time) error {
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":    online,
			"last_seen_at": at,
		}).Error; err != nil {
		return err
	}
	if s.Redis == nil {
		return nil
	}

	if online {
		if err := s.Redis.SAdd(ctx, presenceSetKey, userID).Err(); err != nil {
			return err
		}
	} else {
		if err := s.Redis.SRem(ctx, presenceSetKey, userID).Err(); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(models.PresencePayload{UserID: userID, Online: online, LastSeen: at})
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, presenceChannelName, payload).Err()
}

// OnlineUserIDs lists users currently flagged online in Redis.
func (s *Service) OnlineUserIDs(ctx context.Context) ([]string, error) {
	if s.Redis == nil {
		var ids []string
		err := s.DB.WithContext(ctx).Model(&models.User{}).Where("is_online = ?", true).Pluck("id", &ids).Error
		return ids, err
	}
	return s.Redis.SMembers(ctx, presenceSetKey).Result()
}

// ResetPresence clears every online flag. Used at startup, when no
// connection can be live yet.
func (s *Service) ResetPresence(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_online = ?", true).
		Update("is_online", false).Error; err != nil {
		return err
	}
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, presenceSetKey).Err()
}
