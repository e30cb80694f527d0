package campaign

import (
	"time"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

// NextRun computes the next scheduled time after a completed cycle, using
// calendar-aware offsets anchored at the trigger time. Returns nil for
// one-shot schedules and unknown frequencies.
func NextRun(frequency int, from time.Time) *time.Time {
	var next time.Time
	switch frequency {
	case model.FrequencyDaily:
		next = from.AddDate(0, 0, 1)
	case model.FrequencyWeekly:
		next = from.AddDate(0, 0, 7)
	case model.FrequencyMonthly:
		next = from.AddDate(0, 1, 0)
	case model.FrequencyQuarterly:
		next = from.AddDate(0, 3, 0)
	case model.FrequencyHalfYearly:
		next = from.AddDate(0, 6, 0)
	case model.FrequencyYearly:
		next = from.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &next
}
