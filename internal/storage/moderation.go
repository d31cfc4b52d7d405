package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matcha/backend/internal/config"
	"matcha/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SaveReport stores an abuse report.
func (s *Service) SaveReport(ctx context.Context, report *models.Report) error {
	if report.Status == "" {
		report.Status = models.ReportStatusNew
	}
	if report.Context == "" {
		report.Context = models.ReportContextVideoChat
	}
	if err := s.DB.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("save report for room %s: %w", report.RoomID, err)
	}
	return nil
}

func (s *Service) GetReportByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := s.DB.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &report, nil
}

func (s *Service) MarkReportConfirmed(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", id).
		Update("status", models.ReportStatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReportsSince counts reports against a user or anonymous id.
func (s *Service) CountReportsSince(ctx context.Context, reportedID string, since time.Time) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Report{}).
		Where("(reported_id = ? OR reported_anon_id = ?) AND created_at >= ?", reportedID, reportedID, since).
		Count(&n).Error
	return n, err
}

// UpdateUserReputation adds delta, clamped to the configured bounds.
func (s *Service) UpdateUserReputation(ctx context.Context, userID string, delta int) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("reputation", gorm.Expr("LEAST(GREATEST(reputation + ?, ?), ?)",
			delta, config.MinReputation, config.MaxReputation))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) UpdateUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

// SetBan flags subjectID (user or anonymous id) as banned for d.
func (s *Service) SetBan(ctx context.Context, subjectID string, d time.Duration) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Set(ctx, banKeyPrefix+subjectID, time.Now().Add(d).Unix(), d).Err()
}

func (s *Service) ClearBan(ctx context.Context, subjectID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Del(ctx, banKeyPrefix+subjectID).Err()
}

// IsUserBanned checks the Redis flag first, then the account's block fields.
func (s *Service) IsUserBanned(ctx context.Context, subjectID string) (bool, error) {
	if s.Redis != nil {
		status, err := s.Redis.Get(ctx, banKeyPrefix+subjectID).Result()
		switch {
		case err == nil:
			return status != "", nil
		case !errors.Is(err, redis.Nil):
			return false, err
		}
	}

	var user models.User
	err := s.DB.WithContext(ctx).Select("is_blocked", "block_ends_at").Where("id = ?", subjectID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return banActive(&user, time.Now()), nil
}

func banActive(u *models.User, now time.Time) bool {
	if !u.IsBlocked {
		return false
	}
	return u.BlockEndsAt == nil || now.Before(*u.BlockEndsAt)
}
