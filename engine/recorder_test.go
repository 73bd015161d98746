package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/utils"
)

type failingLogRepo struct {
	memLogRepo
}

func (f *failingLogRepo) Save(ctx context.Context, entity *models.ExecutionLog) error {
	return assert.AnError
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordWritesOneRowAndBumpsStatistics", func(t *testing.T) {
		logRepo := &memLogRepo{}
		ruleRepo := &memRuleRepo{}
		r := NewExecutionRecorder(logRepo, ruleRepo, nil)

		msg := "insufficient balance"
		r.Record(ctx, 7, 42, 1001, models.ActionSetBudget, models.ExecutionStatusFailed, &msg, BuildExecutionData("inv-1", nil, nil))

		rows := logRepo.rowsCopy()
		require.Len(t, rows, 1)
		assert.Equal(t, uint(7), rows[0].RuleID)
		assert.Equal(t, int64(42), rows[0].TokoID)
		assert.Equal(t, int64(1001), rows[0].CampaignID)
		assert.Equal(t, models.ExecutionStatusFailed, rows[0].Status)
		require.NotNil(t, rows[0].ErrorMessage)
		assert.Equal(t, "insufficient balance", *rows[0].ErrorMessage)

		increments := ruleRepo.incrementsCopy()
		require.Len(t, increments, 1)
		assert.False(t, increments[0], "a failed campaign counts against the rule")
	})

	t.Run("SkippedCountsAsSuccess", func(t *testing.T) {
		logRepo := &memLogRepo{}
		ruleRepo := &memRuleRepo{}
		r := NewExecutionRecorder(logRepo, ruleRepo, nil)

		r.Record(ctx, 7, 42, 1001, models.ActionPauseCampaign, models.ExecutionStatusSkipped, nil, nil)

		increments := ruleRepo.incrementsCopy()
		require.Len(t, increments, 1)
		assert.True(t, increments[0])
	})

	t.Run("SaveFailureIsSwallowed", func(t *testing.T) {
		logRepo := &failingLogRepo{}
		ruleRepo := &memRuleRepo{}
		r := NewExecutionRecorder(logRepo, ruleRepo, nil)

		assert.NotPanics(t, func() {
			r.Record(ctx, 7, 42, 1001, models.ActionPauseCampaign, models.ExecutionStatusSuccess, nil, nil)
		})
		// Statistics still updated even when the log write failed.
		assert.Len(t, ruleRepo.incrementsCopy(), 1)
	})
}

func TestBuildExecutionData(t *testing.T) {
	snap := CampaignSnapshot{
		CampaignID:  1001,
		Name:        "promo",
		State:       CampaignStateOngoing,
		DailyBudget: 30000 * utils.BudgetScale,
		ROAS:        0.8,
	}
	_, trace := EvaluateConditions(models.ConditionGroups{
		{{Metric: "roas", Operator: "<", Value: "1"}},
	}, snap)

	raw := BuildExecutionData("inv-9", &snap, trace)

	var decoded struct {
		InvocationID string `json:"invocation_id"`
		Snapshot     *struct {
			Name        string `json:"name"`
			DailyBudget int64  `json:"daily_budget"`
		} `json:"snapshot"`
		Trace []struct {
			Passed bool `json:"passed"`
		} `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "inv-9", decoded.InvocationID)
	require.NotNil(t, decoded.Snapshot)
	assert.Equal(t, "promo", decoded.Snapshot.Name)
	assert.Equal(t, int64(30000*utils.BudgetScale), decoded.Snapshot.DailyBudget)
	require.Len(t, decoded.Trace, 1)
	assert.True(t, decoded.Trace[0].Passed)
}

func TestRedisLeaseWithoutClient(t *testing.T) {
	lease := NewRedisLease(nil, "tokopulse:", 0)

	ok, err := lease.Acquire(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok, "disabled cache means no mutual exclusion, never a block")
	assert.NoError(t, lease.Release(context.Background(), 7))
}
