package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/utils"
)

// ActionExecutor performs rule actions against the ad platform with bounded
// retry and, on the bulk path, anti-detection pacing between campaigns.
type ActionExecutor struct {
	platform PlatformClient
	cfg      config.EngineConfig
	logger   *log.Logger

	// sleep is swapped out in tests; production uses a ctx-aware wait
	sleep func(ctx context.Context, d time.Duration) error
}

// NewActionExecutor creates a new action executor
func NewActionExecutor(platform PlatformClient, cfg config.EngineConfig, logger *log.Logger) *ActionExecutor {
	if logger == nil {
		logger = log.Default()
	}
	return &ActionExecutor{
		platform: platform,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute applies one action to one campaign. Budget actions compute the new
// budget from the snapshot's current value; state actions map to pause/resume
// mutations; notify actions are the orchestrator's job and succeed here
// without touching the platform. Unknown types fail loudly.
func (e *ActionExecutor) Execute(ctx context.Context, session *TokoSession, action models.Action, campaignID int64, currentBudget int64) error {
	canonical, ok := models.NormalizeActionType(action.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}

	switch canonical {
	case models.ActionSetBudget, models.ActionAddBudget, models.ActionReduceBudget:
		newBudget, err := computeNewBudget(canonical, action, currentBudget)
		if err != nil {
			// Validation failures never reach the platform.
			return err
		}
		return e.executeWithRetry(ctx, func() error {
			return e.mutate(ctx, session, OpEditBudget, campaignID, MutationParams{Budget: &newBudget})
		})
	case models.ActionStartCampaign:
		return e.executeWithRetry(ctx, func() error {
			return e.mutate(ctx, session, OpResume, campaignID, MutationParams{})
		})
	case models.ActionPauseCampaign:
		return e.executeWithRetry(ctx, func() error {
			return e.mutate(ctx, session, OpPause, campaignID, MutationParams{})
		})
	case models.ActionTelegramNotification:
		// Dispatched once per invocation by the orchestrator, not per campaign.
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}
}

// mutate performs one platform call and converts a rejection into an error
// carrying the platform's message verbatim.
func (e *ActionExecutor) mutate(ctx context.Context, session *TokoSession, op MutationOp, campaignID int64, params MutationParams) error {
	result, err := e.platform.Mutate(ctx, session, op, campaignID, params)
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.New(result.Message)
	}
	return nil
}

// computeNewBudget returns the target budget in minor units.
//
// set_budget: amount scaled from display units. add_budget: current plus a
// fixed amount or a percentage of current. reduce_budget: same delta,
// subtracted, floored at zero. Percentage must be in (0,100].
func computeNewBudget(canonical string, action models.Action, currentBudget int64) (int64, error) {
	switch canonical {
	case models.ActionSetBudget:
		if action.Amount == nil {
			return 0, ErrMissingAmount
		}
		return *action.Amount * utils.BudgetScale, nil
	case models.ActionAddBudget, models.ActionReduceBudget:
		delta, err := budgetDelta(action, currentBudget)
		if err != nil {
			return 0, err
		}
		if canonical == models.ActionAddBudget {
			return currentBudget + delta, nil
		}
		newBudget := currentBudget - delta
		if newBudget < 0 {
			newBudget = 0
		}
		return newBudget, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownActionType, canonical)
	}
}

func budgetDelta(action models.Action, currentBudget int64) (int64, error) {
	if action.UsesPercentage() {
		if action.Percentage == nil || *action.Percentage <= 0 || *action.Percentage > 100 {
			return 0, ErrInvalidPercentage
		}
		// Decimal math so 33.33% of a large budget does not drift.
		delta := decimal.NewFromInt(currentBudget).
			Mul(decimal.NewFromFloat(*action.Percentage)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		return delta.IntPart(), nil
	}
	if action.Amount == nil {
		return 0, ErrMissingAmount
	}
	return *action.Amount * utils.BudgetScale, nil
}

// executeWithRetry runs fn up to MaxRetries times with linear backoff
// (baseDelay * attempt). On exhaustion the LAST error is returned untouched:
// the platform's rejection text must reach the audit log verbatim.
func (e *ActionExecutor) executeWithRetry(ctx context.Context, fn func() error) error {
	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt < attempts {
			e.logger.Printf("engine: mutation attempt %d/%d failed: %v", attempt, attempts, lastErr)
			if err := e.sleep(ctx, e.cfg.RetryBaseDelay*time.Duration(attempt)); err != nil {
				return lastErr
			}
		}
	}

	retryExhaustedTotal.Inc()
	return lastErr
}

// CampaignOutcome is the per-campaign result of a bulk execution pass
type CampaignOutcome struct {
	CampaignID int64
	Err        error
}

// ExecuteMassActions applies the rule's action list to the given campaigns,
// strictly sequentially and in list order, pausing for a random duration in
// [MinActionDelay, MaxActionDelay] before every campaign after the first.
//
// The pacing is a hard constraint, not an optimization: parallel or rapid
// sequential mutations trip the platform's abuse detection and can get the
// shop's session blocked. The first campaign incurs no delay.
func (e *ActionExecutor) ExecuteMassActions(ctx context.Context, session *TokoSession, campaignIDs []int64, actions models.Actions, snaps map[int64]CampaignSnapshot) []CampaignOutcome {
	outcomes := make([]CampaignOutcome, 0, len(campaignIDs))

	for i, campaignID := range campaignIDs {
		if i > 0 {
			delay := e.randomActionDelay()
			e.logger.Printf("engine: toko=%d pacing %s before campaign %d", session.TokoID, delay, campaignID)
			if err := e.sleep(ctx, delay); err != nil {
				outcomes = append(outcomes, CampaignOutcome{CampaignID: campaignID, Err: err})
				continue
			}
		}

		snap := snaps[campaignID]
		outcomes = append(outcomes, CampaignOutcome{
			CampaignID: campaignID,
			Err:        e.executeAll(ctx, session, actions, campaignID, snap.DailyBudget),
		})
	}

	return outcomes
}

// executeAll runs the rule's actions in order against one campaign; the first
// failing action aborts the rest for that campaign.
func (e *ActionExecutor) executeAll(ctx context.Context, session *TokoSession, actions models.Actions, campaignID int64, currentBudget int64) error {
	for _, action := range actions {
		if err := e.Execute(ctx, session, action, campaignID, currentBudget); err != nil {
			return err
		}
	}
	return nil
}

func (e *ActionExecutor) randomActionDelay() time.Duration {
	minDelay := e.cfg.MinActionDelay
	maxDelay := e.cfg.MaxActionDelay
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
}
