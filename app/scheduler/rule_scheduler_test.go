package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/utils"
)

func newTestScheduler() *RuleScheduler {
	return NewRuleScheduler(nil, nil, nil, config.SchedulerConfig{
		PollInterval:        time.Minute,
		AutoIntervalMinutes: 60,
		RuleBatchSize:       100,
	}, nil)
}

func TestDueNow(t *testing.T) {
	s := newTestScheduler()
	// 03:30 UTC is 10:30 in the platform's timezone (UTC+7)
	now := time.Date(2026, 1, 5, 3, 30, 0, 0, time.UTC)

	t.Run("ContinuousAlwaysDue", func(t *testing.T) {
		rule := &models.Rule{ExecutionMode: models.ExecutionModeContinuous}
		assert.True(t, s.dueNow(rule, now))

		rule.LastExecutedAt = utils.ToPtr(now.Add(-time.Second))
		assert.True(t, s.dueNow(rule, now))
	})

	t.Run("IntervalRespectsElapsedTime", func(t *testing.T) {
		rule := &models.Rule{
			ExecutionMode:   models.ExecutionModeInterval,
			IntervalMinutes: utils.ToPtr(30),
		}
		assert.True(t, s.dueNow(rule, now), "never executed means due")

		rule.LastExecutedAt = utils.ToPtr(now.Add(-29 * time.Minute))
		assert.False(t, s.dueNow(rule, now))

		rule.LastExecutedAt = utils.ToPtr(now.Add(-30 * time.Minute))
		assert.True(t, s.dueNow(rule, now))
	})

	t.Run("AutoUsesConfiguredDefaultInterval", func(t *testing.T) {
		rule := &models.Rule{ExecutionMode: models.ExecutionModeAuto}
		assert.True(t, s.dueNow(rule, now))

		rule.LastExecutedAt = utils.ToPtr(now.Add(-59 * time.Minute))
		assert.False(t, s.dueNow(rule, now))

		rule.LastExecutedAt = utils.ToPtr(now.Add(-61 * time.Minute))
		assert.True(t, s.dueNow(rule, now))
	})

	t.Run("ScheduledTimesMatchPlatformWallClock", func(t *testing.T) {
		rule := &models.Rule{
			ExecutionMode: models.ExecutionModeScheduledTimes,
			ScheduleTimes: []string{"09:00", "10:30"},
		}
		assert.True(t, s.dueNow(rule, now))

		offSchedule := now.Add(5 * time.Minute) // 10:35 local
		assert.False(t, s.dueNow(rule, offSchedule))
	})

	t.Run("ScheduledTimesDoNotDoubleFireWithinMinute", func(t *testing.T) {
		rule := &models.Rule{
			ExecutionMode:  models.ExecutionModeScheduledTimes,
			ScheduleTimes:  []string{"10:30"},
			LastExecutedAt: utils.ToPtr(now.Add(-20 * time.Second)),
		}
		assert.False(t, s.dueNow(rule, now))

		rule.LastExecutedAt = utils.ToPtr(now.Add(-2 * time.Minute))
		assert.True(t, s.dueNow(rule, now))
	})

	t.Run("ScheduledDatesFireOnceAfterMoment", func(t *testing.T) {
		at := now.Add(-10 * time.Minute)
		rule := &models.Rule{
			ExecutionMode: models.ExecutionModeScheduledDates,
			ScheduleDates: []string{at.Format(time.RFC3339)},
		}
		assert.True(t, s.dueNow(rule, now), "moment passed, never executed")

		rule.LastExecutedAt = utils.ToPtr(at.Add(time.Minute))
		assert.False(t, s.dueNow(rule, now), "already executed after the moment")

		future := now.Add(time.Hour)
		rule.ScheduleDates = []string{future.Format(time.RFC3339)}
		rule.LastExecutedAt = nil
		assert.False(t, s.dueNow(rule, now), "moment not reached yet")
	})

	t.Run("UnparsableScheduleDateSkipped", func(t *testing.T) {
		rule := &models.Rule{
			ExecutionMode: models.ExecutionModeScheduledDates,
			ScheduleDates: []string{"not-a-date"},
		}
		assert.False(t, s.dueNow(rule, now))
	})

	t.Run("UnknownModeNeverDue", func(t *testing.T) {
		rule := &models.Rule{ExecutionMode: models.ExecutionMode("bogus")}
		assert.False(t, s.dueNow(rule, now))
	})
}
