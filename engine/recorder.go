package engine

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/datatypes"

	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/repository"
	"github.com/tokopulse/tokopulse/utils"
)

// ExecutionRecorder persists per-campaign outcomes and the rule's rolling
// counters. Both writes are best-effort: the platform mutation has already
// happened (or been attempted) and must never be rolled back because the
// audit trail hiccupped, so recorder failures are logged and swallowed.
type ExecutionRecorder struct {
	logRepo  repository.ExecutionLogRepository
	ruleRepo repository.RuleRepository
	logger   *log.Logger
}

// NewExecutionRecorder creates a new execution recorder
func NewExecutionRecorder(logRepo repository.ExecutionLogRepository, ruleRepo repository.RuleRepository, logger *log.Logger) *ExecutionRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &ExecutionRecorder{
		logRepo:  logRepo,
		ruleRepo: ruleRepo,
		logger:   logger,
	}
}

// executionData is the JSON blob stored with every log row: the snapshot
// subset the decision was made on plus the per-leaf evaluation trace.
type executionData struct {
	InvocationID string          `json:"invocation_id"`
	Snapshot     *snapshotSubset `json:"snapshot,omitempty"`
	Trace        EvaluationTrace `json:"trace,omitempty"`
}

type snapshotSubset struct {
	Name        string  `json:"name,omitempty"`
	State       string  `json:"state,omitempty"`
	DailyBudget int64   `json:"daily_budget"`
	Cost        float64 `json:"cost"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	ROAS        float64 `json:"roas"`
	Conversions float64 `json:"conversions"`
	Balance     float64 `json:"balance"`
}

// BuildExecutionData renders the audit blob for one campaign outcome
func BuildExecutionData(invocationID string, snap *CampaignSnapshot, trace EvaluationTrace) json.RawMessage {
	data := executionData{InvocationID: invocationID, Trace: trace}
	if snap != nil {
		data.Snapshot = &snapshotSubset{
			Name:        snap.Name,
			State:       snap.State,
			DailyBudget: snap.DailyBudget,
			Cost:        snap.Cost,
			Impressions: snap.Impressions,
			Clicks:      snap.Clicks,
			CTR:         snap.CTR,
			CPC:         snap.CPC,
			ROAS:        snap.ROAS,
			Conversions: snap.Conversions,
			Balance:     snap.Balance,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// Record writes one append-only execution log row and bumps the rule's
// counters. Called exactly once per campaign per invocation.
func (r *ExecutionRecorder) Record(ctx context.Context, ruleID uint, tokoID, campaignID int64, actionType string, status models.ExecutionStatus, errorMessage *string, data json.RawMessage) {
	entry := &models.ExecutionLog{
		RuleID:        ruleID,
		CampaignID:    campaignID,
		TokoID:        tokoID,
		ActionType:    actionType,
		Status:        status,
		ErrorMessage:  errorMessage,
		ExecutionData: datatypes.JSON(data),
		ExecutedAt:    utils.UTCNow(),
	}

	if err := r.logRepo.Save(ctx, entry); err != nil {
		recorderFailuresTotal.Inc()
		r.logger.Printf("engine: failed to save execution log rule=%d campaign=%d: %v", ruleID, campaignID, err)
	}

	campaignOutcomesTotal.WithLabelValues(status.String()).Inc()
	r.UpdateStatistics(ctx, ruleID, status.CountsAsSuccess())
}

// UpdateStatistics bumps triggers and either success_count or error_count
// atomically; failures are swallowed.
func (r *ExecutionRecorder) UpdateStatistics(ctx context.Context, ruleID uint, succeeded bool) {
	if err := r.ruleRepo.IncrementStatistics(ctx, ruleID, succeeded); err != nil {
		recorderFailuresTotal.Inc()
		r.logger.Printf("engine: failed to update rule statistics rule=%d: %v", ruleID, err)
	}
}
