package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matcha/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetUserByID loads an account.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetFriendIDs returns the other side of every friendship edge of userID.
func (s *Service) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	var edges []models.Friendship
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? OR friend_id = ?", userID, userID).
		Find(&edges).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.UserID == userID {
			ids = append(ids, e.FriendID)
		} else {
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

// lockPair serializes friend operations on one couple for the rest of the
// transaction, so two crossing requests cannot both be inserted as pending.
func lockPair(tx *gorm.DB, a, b string) error {
	edge := models.NewFriendship(a, b)
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "friend:"+edge.UserID+":"+edge.FriendID).Error
}

func displayNameOf(tx *gorm.DB, userID string) string {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		return "Someone"
	}
	return user.DisplayName()
}

func notificationData(v map[string]interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// acceptTx marks req accepted, creates the friendship edge and notifies the
// original sender. It must run inside a transaction.
func acceptTx(tx *gorm.DB, req *models.FriendRequest, now time.Time) error {
	req.Status = models.FriendRequestAccepted
	req.RespondedAt = &now
	if err := tx.Model(req).Updates(map[string]interface{}{
		"status":       req.Status,
		"responded_at": now,
	}).Error; err != nil {
		return err
	}
	edge := models.NewFriendship(req.SenderID, req.ReceiverID)
	edge.CreatedAt = now
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
		return err
	}
	return tx.Create(&models.Notification{
		UserID:  req.SenderID,
		Type:    models.NotificationFriendRequest,
		Title:   "Friend request accepted",
		Message: displayNameOf(tx, req.ReceiverID) + " accepted your friend request",
		Data:    notificationData(map[string]interface{}{"friendId": req.ReceiverID, "requestId": req.ID}),
	}).Error
}

// SendFriendRequest creates a pending request from sender to receiver, or
// accepts the receiver's pending request to sender if one exists.
func (s *Service) SendFriendRequest(ctx context.Context, senderID, receiverID, message string) (*FriendRequestResult, error) {
	if senderID == receiverID {
		return nil, fmt.Errorf("friend request to self: %w", ErrRequestExists)
	}
	var result FriendRequestResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, senderID, receiverID); err != nil {
			return err
		}

		edge := models.NewFriendship(senderID, receiverID)
		var friends int64
		if err := tx.Model(&models.Friendship{}).
			Where("user_id = ? AND friend_id = ?", edge.UserID, edge.FriendID).
			Count(&friends).Error; err != nil {
			return err
		}
		if friends > 0 {
			return ErrAlreadyFriends
		}

		var existing models.FriendRequest
		err := tx.Where("status = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			models.FriendRequestPending, senderID, receiverID, receiverID, senderID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.SenderID == senderID {
				return ErrRequestExists
			}
			if err := acceptTx(tx, &existing, time.Now()); err != nil {
				return err
			}
			result = FriendRequestResult{Request: &existing, AutoAccepted: true}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		req := models.FriendRequest{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.FriendRequestPending,
			Message:    message,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Notification{
			UserID:  receiverID,
			Type:    models.NotificationFriendRequest,
			Title:   "New friend request",
			Message: displayNameOf(tx, senderID) + " would like to add you as a friend",
			Data: notificationData(map[string]interface{}{
				"requestId":        req.ID,
				"senderId":         senderID,
				"fromVideoSession": true,
			}),
		}).Error; err != nil {
			return err
		}
		result = FriendRequestResult{Request: &req}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) pendingFor(tx *gorm.DB, requestID uint, receiverID string) (*models.FriendRequest, error) {
	var req models.FriendRequest
	err := tx.Where("id = ? AND receiver_id = ? AND status = ?", requestID, receiverID, models.FriendRequestPending).
		First(&req).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// AcceptFriendRequest accepts a pending request addressed to receiverID.
func (s *Service) AcceptFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error) {
	var accepted *models.FriendRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.pendingFor(tx, requestID, receiverID)
		if err != nil {
			return err
		}
		if err := lockPair(tx, req.SenderID, req.ReceiverID); err != nil {
			return err
		}
		if err := acceptTx(tx, req, time.Now()); err != nil {
			return err
		}
		accepted = req
		return nil
	})
	return accepted, err
}

// RejectFriendRequest rejects a pending request addressed to receiverID.
func (s *Service) RejectFriendRequest(ctx context.Context, requestID uint, receiverID string) (*models.FriendRequest, error) {
	req, err := s.pendingFor(s.DB.WithContext(ctx), requestID, receiverID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	req.Status = models.FriendRequestRejected
	req.RespondedAt = &now
	if err := s.DB.WithContext(ctx).Model(req).Updates(map[string]interface{}{
		"status":       req.Status,
		"responded_at": now,
	}).Error; err != nil {
		return nil, err
	}
	return req, nil
}
