package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/internal/model"
)

func TestNextRun(t *testing.T) {
	from := time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		frequency int
		expected  *time.Time
	}{
		{"Once Never Recurs", model.FrequencyOnce, nil},
		{"Daily", model.FrequencyDaily, timePtr(from.AddDate(0, 0, 1))},
		{"Weekly", model.FrequencyWeekly, timePtr(from.AddDate(0, 0, 7))},
		{"Monthly", model.FrequencyMonthly, timePtr(time.Date(2024, time.April, 15, 9, 30, 0, 0, time.UTC))},
		{"Quarterly", model.FrequencyQuarterly, timePtr(time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC))},
		{"Half Yearly", model.FrequencyHalfYearly, timePtr(time.Date(2024, time.September, 15, 9, 30, 0, 0, time.UTC))},
		{"Yearly", model.FrequencyYearly, timePtr(time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC))},
		{"Unknown Frequency", 42, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRun(tc.frequency, from)
			if tc.expected == nil {
				assert.Nil(t, got)
				return
			}
			assert.NotNil(t, got)
			assert.Equal(t, *tc.expected, *got)
		})
	}
}

func TestNextRun_MonthEndNormalizes(t *testing.T) {
	// AddDate normalizes out-of-range days, so Jan 31 + 1 month lands in
	// early March rather than clamping to Feb 28/29. The anchor is the
	// trigger time, not the original schedule, so drift does not compound.
	from := time.Date(2025, time.January, 31, 8, 0, 0, 0, time.UTC)
	got := NextRun(model.FrequencyMonthly, from)
	assert.NotNil(t, got)
	assert.Equal(t, time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC), *got)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
