// Package complaint turns recorded abuse reports into reputation changes and
// temporary bans, escalating the ban length for repeat offenders.
package complaint

import (
	"context"
	"errors"
	"time"

	"matcha/backend/internal/analysis"
	"matcha/backend/internal/config"
	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"
)

// Store is the slice of storage the complaint service needs.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetReportByID(ctx context.Context, id uint) (*models.Report, error)
	MarkReportConfirmed(ctx context.Context, id uint) error
	CountReportsSince(ctx context.Context, reportedID string, since time.Time) (int64, error)
	UpdateUserReputation(ctx context.Context, userID string, delta int) error
	UpdateUser(ctx context.Context, user *models.User) error
	SetBan(ctx context.Context, subjectID string, d time.Duration) error
	ClearBan(ctx context.Context, subjectID string) error
}

// Ban describes a ban that was just applied.
type Ban struct {
	SubjectID string
	Level     int
	Until     time.Time
}

// Service handles the business logic for complaints.
type Service struct {
	Storage Store
	Now     func() time.Time
}

// NewService creates a new complaint service.
func NewService(s Store) *Service {
	return &Service{Storage: s, Now: time.Now}
}

// HandleReport applies the reputation penalty for a freshly stored report and
// bans the reported participant when a threshold is crossed. The returned ban
// is nil when nobody was banned.
func (s *Service) HandleReport(ctx context.Context, report *models.Report) (*Ban, error) {
	severe := analysis.IsSevere(report.Reason)

	if report.ReportedID != "" {
		err := s.Storage.UpdateUserReputation(ctx, report.ReportedID, -analysis.GetWeight(report.Reason))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return s.CheckForBan(ctx, report.ReportedID, severe)
	}

	if report.ReportedAnonID == "" {
		return nil, nil
	}
	if !severe {
		n, err := s.Storage.CountReportsSince(ctx, report.ReportedAnonID, s.Now().Add(-config.BanFrequencyWindow))
		if err != nil {
			return nil, err
		}
		if n <= config.BanThresholdFrequency {
			return nil, nil
		}
	}
	d := getBanDuration(1)
	if err := s.Storage.SetBan(ctx, report.ReportedAnonID, d); err != nil {
		return nil, err
	}
	return &Ban{SubjectID: report.ReportedAnonID, Level: 1, Until: s.Now().Add(d)}, nil
}

// CheckForBan checks if a user should be banned based on their reputation and complaint history.
func (s *Service) CheckForBan(ctx context.Context, userID string, severe bool) (*Ban, error) {
	user, err := s.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Threshold Ban
	if severe || user.Reputation < config.BanThresholdReputation {
		return s.applyBan(ctx, user)
	}

	// Frequency Ban
	n, err := s.Storage.CountReportsSince(ctx, userID, s.Now().Add(-config.BanFrequencyWindow))
	if err != nil {
		return nil, err
	}
	if n > config.BanThresholdFrequency {
		return s.applyBan(ctx, user)
	}

	return nil, nil
}

func (s *Service) applyBan(ctx context.Context, user *models.User) (*Ban, error) {
	now := s.Now()
	level := 1
	if user.LastBanAt != nil {
		since := now.Sub(*user.LastBanAt)
		if since < config.BanEscalationWindow {
			level = 3
		} else if since < config.BanLongWindow {
			level = 2
		}
	}

	until := now.Add(getBanDuration(level))
	user.IsBlocked = true
	user.BlockEndsAt = &until
	user.BlockLevel = level
	user.LastBanAt = &now
	if err := s.Storage.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.Storage.SetBan(ctx, user.ID, getBanDuration(level)); err != nil {
		return nil, err
	}
	return &Ban{SubjectID: user.ID, Level: level, Until: until}, nil
}

// BanUser bans a user or anonymous id by hand. A zero duration means the
// longest automatic duration.
func (s *Service) BanUser(ctx context.Context, subjectID string, d time.Duration) (*Ban, error) {
	if d <= 0 {
		d = getBanDuration(3)
	}
	until := s.Now().Add(d)
	user, err := s.Storage.GetUserByID(ctx, subjectID)
	switch {
	case err == nil:
		now := s.Now()
		user.IsBlocked = true
		user.BlockEndsAt = &until
		user.LastBanAt = &now
		if err := s.Storage.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	if err := s.Storage.SetBan(ctx, subjectID, d); err != nil {
		return nil, err
	}
	return &Ban{SubjectID: subjectID, Until: until}, nil
}

// Unban lifts a ban on a user or anonymous id. Users get part of their
// reputation back so the next report does not ban them again at once.
func (s *Service) Unban(ctx context.Context, subjectID string) error {
	user, err := s.Storage.GetUserByID(ctx, subjectID)
	switch {
	case err == nil:
		user.IsBlocked = false
		user.BlockEndsAt = nil
		if err := s.Storage.UpdateUser(ctx, user); err != nil {
			return err
		}
		if err := s.Storage.UpdateUserReputation(ctx, user.ID, config.ReputationRecoveryAmount); err != nil {
			return err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}
	return s.Storage.ClearBan(ctx, subjectID)
}

// ConfirmReport marks a report as confirmed by a moderator and rewards the
// reporter.
func (s *Service) ConfirmReport(ctx context.Context, reportID uint) error {
	report, err := s.Storage.GetReportByID(ctx, reportID)
	if err != nil {
		return err
	}
	if err := s.Storage.MarkReportConfirmed(ctx, reportID); err != nil {
		return err
	}
	if report.ReporterID == "" {
		return nil
	}
	return s.Storage.UpdateUserReputation(ctx, report.ReporterID, config.ConfirmedReportBonus)
}

func getBanDuration(level int) time.Duration {
	switch level {
	case 1:
		return config.BanLevel1Duration
	case 2:
		return config.BanLevel2Duration
	default:
		return config.BanLevel3Duration
	}
}
