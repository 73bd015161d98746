package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokopulse/tokopulse/models"
)

func TestEvaluateConditions(t *testing.T) {
	snap := CampaignSnapshot{
		CampaignID:  1001,
		State:       CampaignStateOngoing,
		DailyBudget: 50000 * 100000,
		Cost:        150000,
		Impressions: 1200,
		Clicks:      30,
		ROAS:        0.8,
		Conversions: 0,
	}

	t.Run("SingleGroupSingleLeaf", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "roas", Operator: "<", Value: "1"}},
		}
		passed, trace := EvaluateConditions(groups, snap)
		assert.True(t, passed)
		require.Len(t, trace, 1)
		require.Len(t, trace[0].Leaves, 1)
		assert.True(t, trace[0].Passed)
		assert.Equal(t, 0.8, trace[0].Leaves[0].Actual)
	})

	t.Run("LeavesWithinGroupAreANDed", func(t *testing.T) {
		groups := models.ConditionGroups{
			{
				{Metric: "spend", Operator: ">", Value: "100000"},
				{Metric: "orders", Operator: "=", Value: "0"},
			},
		}
		passed, _ := EvaluateConditions(groups, snap)
		assert.True(t, passed)

		groups[0][1].Value = "5" // orders = 5 does not hold
		passed, trace := EvaluateConditions(groups, snap)
		assert.False(t, passed)
		assert.True(t, trace[0].Leaves[0].Passed)
		assert.False(t, trace[0].Leaves[1].Passed)
	})

	t.Run("GroupsAreORed", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "roas", Operator: ">", Value: "5"}},                                        // fails
			{{Metric: "spend", Operator: ">", Value: "100000"}, {Metric: "orders", Operator: "=", Value: "0"}}, // passes
		}
		passed, trace := EvaluateConditions(groups, snap)
		assert.True(t, passed)
		require.Len(t, trace, 2)
		assert.False(t, trace[0].Passed)
		assert.True(t, trace[1].Passed)
	})

	t.Run("AllGroupsEvaluatedForTrace", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "roas", Operator: "<", Value: "1"}}, // already passes
			{{Metric: "clicks", Operator: ">", Value: "10"}},
		}
		_, trace := EvaluateConditions(groups, snap)
		require.Len(t, trace, 2)
		assert.True(t, trace[1].Passed, "later groups still evaluated after an earlier pass")
	})

	t.Run("WordOperators", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "impressions", Operator: "greater_than", Value: "1000"}},
		}
		passed, _ := EvaluateConditions(groups, snap)
		assert.True(t, passed)
	})

	t.Run("MetricAliases", func(t *testing.T) {
		for _, alias := range []string{"cost", "spend"} {
			groups := models.ConditionGroups{
				{{Metric: alias, Operator: ">=", Value: "150000"}},
			}
			passed, _ := EvaluateConditions(groups, snap)
			assert.True(t, passed, "alias %q", alias)
		}
	})

	t.Run("UnknownMetricFailsLeafOnly", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "nonsense", Operator: ">", Value: "1"}},
			{{Metric: "roas", Operator: "<", Value: "1"}},
		}
		passed, trace := EvaluateConditions(groups, snap)
		assert.True(t, passed)
		assert.False(t, trace[0].Passed)
		assert.False(t, trace[0].Leaves[0].Found)
	})

	t.Run("UnparseableValueFailsLeaf", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "roas", Operator: "<", Value: "abc"}},
		}
		passed, _ := EvaluateConditions(groups, snap)
		assert.False(t, passed)
	})

	t.Run("EmptyGroupsFail", func(t *testing.T) {
		passed, trace := EvaluateConditions(models.ConditionGroups{}, snap)
		assert.False(t, passed)
		assert.Empty(t, trace)

		passed, trace = EvaluateConditions(models.ConditionGroups{{}}, snap)
		assert.False(t, passed)
		require.Len(t, trace, 1)
		assert.False(t, trace[0].Passed)
	})

	t.Run("BudgetMetricInDisplayUnits", func(t *testing.T) {
		groups := models.ConditionGroups{
			{{Metric: "budget", Operator: "=", Value: "50000"}},
		}
		passed, _ := EvaluateConditions(groups, snap)
		assert.True(t, passed)
	})
}

func TestMarshalTrace(t *testing.T) {
	_, trace := EvaluateConditions(models.ConditionGroups{
		{{Metric: "roas", Operator: "<", Value: "1"}},
	}, CampaignSnapshot{ROAS: 0.5})

	raw := MarshalTrace(trace)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, true, decoded[0]["passed"])
}

func TestMetricValue(t *testing.T) {
	snap := CampaignSnapshot{ROAS: 2.5, Conversions: 7, Cost: 100}

	for alias, want := range map[string]float64{
		"roas": 2.5, "roi": 2.5,
		"orders": 7, "conversions": 7, "checkout": 7,
		"spend": 100, "cost": 100,
	} {
		got, found := snap.MetricValue(alias)
		assert.True(t, found, alias)
		assert.Equal(t, want, got, alias)
	}

	_, found := snap.MetricValue("unknown")
	assert.False(t, found)
}
