package engine

import (
	"encoding/json"
	"strconv"

	"github.com/tokopulse/tokopulse/models"
)

// LeafTrace records how one condition leaf evaluated against a snapshot.
// Traces end up inside the execution log's JSON blob so operators can see why
// a campaign matched or was skipped.
type LeafTrace struct {
	Metric   string  `json:"metric"`
	Operator string  `json:"operator"`
	Value    string  `json:"value"`
	Actual   float64 `json:"actual"`
	Found    bool    `json:"found"`
	Passed   bool    `json:"passed"`
}

// GroupTrace records the outcome of one AND-group
type GroupTrace struct {
	Passed bool        `json:"passed"`
	Leaves []LeafTrace `json:"leaves"`
}

// EvaluationTrace is the full per-campaign trace: one entry per group, in rule
// order
type EvaluationTrace []GroupTrace

// MarshalTrace renders the trace for the execution log blob
func MarshalTrace(t EvaluationTrace) json.RawMessage {
	b, err := json.Marshal(t)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}

// EvaluateConditions decides whether a campaign qualifies: leaves within a
// group are AND-ed, groups are OR-ed. Pure and deterministic; safe to call
// concurrently for many campaigns.
//
// Every group is evaluated even after one passes, so the trace is complete for
// the audit log. A malformed leaf (unknown metric, unparseable value, unknown
// operator) evaluates to false rather than raising, so one bad condition never
// aborts a batch.
func EvaluateConditions(groups models.ConditionGroups, snap CampaignSnapshot) (bool, EvaluationTrace) {
	trace := make(EvaluationTrace, 0, len(groups))
	passed := false

	for _, group := range groups {
		// An empty group matches nothing, and an empty group list fails the
		// whole evaluation.
		gt := GroupTrace{Passed: len(group) > 0, Leaves: make([]LeafTrace, 0, len(group))}
		for _, leaf := range group {
			lt := evaluateLeaf(leaf, snap)
			gt.Leaves = append(gt.Leaves, lt)
			if !lt.Passed {
				gt.Passed = false
			}
		}
		if gt.Passed {
			passed = true
		}
		trace = append(trace, gt)
	}

	return passed, trace
}

func evaluateLeaf(leaf models.Condition, snap CampaignSnapshot) LeafTrace {
	lt := LeafTrace{
		Metric:   leaf.Metric,
		Operator: leaf.Operator,
		Value:    leaf.Value,
	}

	op, ok := models.NormalizeOperator(leaf.Operator)
	if !ok {
		return lt
	}

	actual, found := snap.MetricValue(leaf.Metric)
	lt.Actual = actual
	lt.Found = found
	if !found {
		return lt
	}

	expected, err := strconv.ParseFloat(leaf.Value, 64)
	if err != nil {
		return lt
	}

	switch op {
	case models.OperatorGreaterThan:
		lt.Passed = actual > expected
	case models.OperatorLessThan:
		lt.Passed = actual < expected
	case models.OperatorEqual:
		lt.Passed = actual == expected
	case models.OperatorGreaterEqual:
		lt.Passed = actual >= expected
	case models.OperatorLessEqual:
		lt.Passed = actual <= expected
	}

	return lt
}
