// Package analysis scores abuse reports: how much reputation a report costs
// the reported user and whether it is severe enough to ban on its own.
package analysis

import (
	"strings"

	"matcha/backend/internal/config"
)

// NormalizeReason folds free-form client reasons onto the known keys.
func NormalizeReason(reason string) string {
	return strings.ToLower(strings.TrimSpace(reason))
}

// GetWeight returns the reputation penalty for a report reason.
func GetWeight(reason string) int {
	if w, ok := config.ReportWeights[NormalizeReason(reason)]; ok {
		return w
	}
	return config.DefaultReportWeight
}

// IsSevere reports whether a single report with this reason warrants a ban.
func IsSevere(reason string) bool {
	return GetWeight(reason) >= config.SevereReportWeight
}
