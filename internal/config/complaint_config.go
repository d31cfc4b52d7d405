package config

import "time"

const (
	// Reputation
	MaxReputation            = 1000
	MinReputation            = 0
	ConfirmedReportBonus     = 50
	ReputationRecoveryAmount = 100

	// Ban
	BanThresholdReputation = 500
	BanThresholdFrequency  = 5
	BanFrequencyWindow     = 24 * time.Hour
	BanLevel1Duration      = 30 * time.Minute
	BanLevel2Duration      = 6 * time.Hour
	BanLevel3Duration      = 24 * time.Hour
	BanEscalationWindow    = 7 * 24 * time.Hour
	BanLongWindow          = 30 * 24 * time.Hour
)

// ReportWeights maps a report reason to the reputation it costs the reported
// user. Unknown reasons cost DefaultReportWeight.
var ReportWeights = map[string]int{
	"spam":          5,
	"inappropriate": 50,
	"harassment":    50,
	"nudity":        250,
	"underage":      250,
	"violence":      250,
}

const DefaultReportWeight = 5

// SevereReportWeight is the weight from which a single report bans directly.
const SevereReportWeight = 250
