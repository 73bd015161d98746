package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/utils"
)

// RuleExecutor is the orchestrator: one ExecuteRule call handles one due rule,
// fanning out per shop, evaluating conditions per campaign, driving paced
// action execution, recording outcomes, and dispatching the optional
// notification. Stateless across invocations.
type RuleExecutor struct {
	creds      CredentialProvider
	platform   PlatformClient
	actions    *ActionExecutor
	recorder   *ExecutionRecorder
	dispatcher *NotificationDispatcher
	lease      Leaser
	cfg        config.EngineConfig
	logger     *log.Logger
}

// NewRuleExecutor creates a new rule executor
func NewRuleExecutor(
	creds CredentialProvider,
	platform PlatformClient,
	actions *ActionExecutor,
	recorder *ExecutionRecorder,
	dispatcher *NotificationDispatcher,
	lease Leaser,
	cfg config.EngineConfig,
	logger *log.Logger,
) *RuleExecutor {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxConcurrentShops < 1 {
		cfg.MaxConcurrentShops = utils.DefaultMaxConcurrentShops
	}
	return &RuleExecutor{
		creds:      creds,
		platform:   platform,
		actions:    actions,
		recorder:   recorder,
		dispatcher: dispatcher,
		lease:      lease,
		cfg:        cfg,
		logger:     logger,
	}
}

// ExecutionResult aggregates one invocation across all shops
type ExecutionResult struct {
	RuleID       uint
	InvocationID string
	Executed     int
	Skipped      int
	Failed       int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Succeeded reports the invocation-level outcome: at least one campaign was
// executed or correctly skipped. A rule whose every campaign errored failed.
func (r *ExecutionResult) Succeeded() bool {
	return r.Executed+r.Skipped > 0
}

// shopOutcome is the per-shop tally folded into the aggregate result
type shopOutcome struct {
	executed   int
	skipped    int
	failed     int
	matchedAny bool
}

// shopState carries one shop unit's running tally plus the set of campaigns
// whose log row has already been written. Every campaign gets exactly one row
// per invocation, so the panic path may only fail the unrecorded remainder.
type shopState struct {
	outcome  shopOutcome
	recorded map[int64]bool
}

// ExecuteRule runs one invocation for one due rule. A held lease is a clean
// no-op (nil result, nil error). Shops run concurrently under a bounded
// semaphore; campaigns within a shop run strictly sequentially with pacing.
func (x *RuleExecutor) ExecuteRule(ctx context.Context, rule *models.Rule) (*ExecutionResult, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is nil")
	}
	if len(rule.ConditionGroups) == 0 {
		return nil, fmt.Errorf("rule %d: %w", rule.ID, ErrNoConditionGroups)
	}

	if x.lease != nil {
		acquired, err := x.lease.Acquire(ctx, rule.ID)
		if err != nil {
			// Lease storage being down must not stop automation; run without
			// mutual exclusion, as the engine historically did.
			x.logger.Printf("engine: rule=%d lease acquire failed, proceeding unlocked: %v", rule.ID, err)
		} else if !acquired {
			x.logger.Printf("engine: rule=%d already executing, skipping invocation", rule.ID)
			ruleExecutionsTotal.WithLabelValues("noop").Inc()
			return nil, nil
		} else {
			defer func() {
				if err := x.lease.Release(context.WithoutCancel(ctx), rule.ID); err != nil {
					x.logger.Printf("engine: rule=%d lease release failed: %v", rule.ID, err)
				}
			}()
		}
	}

	result := &ExecutionResult{
		RuleID:       rule.ID,
		InvocationID: uuid.NewString(),
		StartedAt:    utils.UTCNow(),
	}
	x.logger.Printf("engine: rule=%d invocation=%s starting, %d shops assigned",
		rule.ID, result.InvocationID, len(rule.CampaignAssignments))

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, x.cfg.MaxConcurrentShops)

		matchedAny bool
	)

	for tokoID, campaignIDs := range rule.CampaignAssignments {
		if len(campaignIDs) == 0 {
			// Shops with nothing assigned are skipped at zero cost.
			continue
		}

		wg.Add(1)
		go func(tokoID int64, campaignIDs []int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := x.runShopSafe(ctx, rule, result.InvocationID, tokoID, campaignIDs)

			mu.Lock()
			result.Executed += outcome.executed
			result.Skipped += outcome.skipped
			result.Failed += outcome.failed
			if outcome.matchedAny {
				matchedAny = true
			}
			mu.Unlock()
		}(tokoID, campaignIDs)
	}

	wg.Wait()
	result.FinishedAt = utils.UTCNow()
	ruleExecutionDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	// One notification per invocation, never per campaign; delivery failures
	// are the dispatcher's problem, not the invocation's.
	if x.dispatcher != nil && rule.HasTelegramNotification() && rule.TelegramChatID != nil &&
		(matchedAny || result.Executed > 0) {
		x.dispatcher.Enqueue(*rule.TelegramChatID, buildNotificationText(rule, result))
	}

	x.logger.Printf("engine: rule=%d invocation=%s finished executed=%d skipped=%d failed=%d in %s",
		rule.ID, result.InvocationID, result.Executed, result.Skipped, result.Failed,
		result.FinishedAt.Sub(result.StartedAt))

	if !result.Succeeded() {
		ruleExecutionsTotal.WithLabelValues("failure").Inc()
		return result, fmt.Errorf("rule %d: %w", rule.ID, ErrNothingExecuted)
	}
	ruleExecutionsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// runShopSafe shields sibling shops from panics in one shop's unit of work:
// an escaped panic fails the campaigns whose row is not yet written, keeping
// the rows and tallies already recorded for the rest of the shop.
func (x *RuleExecutor) runShopSafe(ctx context.Context, rule *models.Rule, invocationID string, tokoID int64, campaignIDs []int64) (outcome shopOutcome) {
	st := &shopState{recorded: make(map[int64]bool, len(campaignIDs))}
	defer func() {
		if r := recover(); r != nil {
			x.logger.Printf("engine: rule=%d toko=%d panic in shop unit: %v", rule.ID, tokoID, r)
			msg := fmt.Sprintf("internal error: %v", r)

			remaining := make([]int64, 0, len(campaignIDs))
			for _, campaignID := range campaignIDs {
				if !st.recorded[campaignID] {
					remaining = append(remaining, campaignID)
				}
			}
			failed := x.failCampaigns(ctx, rule, invocationID, tokoID, remaining, msg, st.recorded)
			outcome = st.outcome
			outcome.failed += failed.failed
		}
	}()

	x.runShop(ctx, rule, invocationID, tokoID, campaignIDs, st)
	return st.outcome
}

func (x *RuleExecutor) runShop(ctx context.Context, rule *models.Rule, invocationID string, tokoID int64, campaignIDs []int64, st *shopState) {
	actionType := primaryActionType(rule.Actions)

	// Missing session is the only fatal-to-shop condition; retrying cannot
	// conjure a credential, so every campaign fails immediately.
	session, err := x.creds.GetSession(ctx, tokoID)
	if err != nil {
		x.logger.Printf("engine: rule=%d toko=%d session unavailable: %v", rule.ID, tokoID, err)
		st.outcome = x.failCampaigns(ctx, rule, invocationID, tokoID, campaignIDs, err.Error(), st.recorded)
		return
	}

	snaps, err := x.platform.FetchAllCampaigns(ctx, session)
	if err != nil {
		x.logger.Printf("engine: rule=%d toko=%d snapshot fetch failed: %v", rule.ID, tokoID, err)
		st.outcome = x.failCampaigns(ctx, rule, invocationID, tokoID, campaignIDs, err.Error(), st.recorded)
		return
	}

	traces := make(map[int64]EvaluationTrace, len(campaignIDs))

	// Intersect requested ids with the snapshot, preserving list order: that
	// order is the execution order and is deterministic for a given snapshot.
	matched := make([]int64, 0, len(campaignIDs))
	for _, campaignID := range campaignIDs {
		snap, ok := snaps[campaignID]
		if !ok {
			// Platform no longer reports this campaign (deleted or renamed);
			// an error for this campaign, invisible to its siblings.
			msg := ErrCampaignNotInSnapshot.Error()
			x.recorder.Record(ctx, rule.ID, tokoID, campaignID, actionType,
				models.ExecutionStatusFailed, &msg,
				BuildExecutionData(invocationID, nil, nil))
			st.recorded[campaignID] = true
			st.outcome.failed++
			continue
		}

		passed, trace := EvaluateConditions(rule.ConditionGroups, snap)
		traces[campaignID] = trace
		if passed {
			matched = append(matched, campaignID)
			continue
		}

		// Not matching means the automation correctly chose not to act:
		// recorded as skipped and counted toward the success statistic.
		x.recorder.Record(ctx, rule.ID, tokoID, campaignID, actionType,
			models.ExecutionStatusSkipped, nil,
			BuildExecutionData(invocationID, utils.ToPtr(snap), trace))
		st.recorded[campaignID] = true
		st.outcome.skipped++
	}

	if len(matched) == 0 {
		return
	}
	st.outcome.matchedAny = true

	x.logger.Printf("engine: rule=%d toko=%d executing %d of %d campaigns",
		rule.ID, tokoID, len(matched), len(campaignIDs))

	for _, co := range x.actions.ExecuteMassActions(ctx, session, matched, rule.Actions, snaps) {
		snap := snaps[co.CampaignID]
		if co.Err != nil {
			msg := co.Err.Error()
			x.recorder.Record(ctx, rule.ID, tokoID, co.CampaignID, actionType,
				models.ExecutionStatusFailed, &msg,
				BuildExecutionData(invocationID, &snap, traces[co.CampaignID]))
			st.recorded[co.CampaignID] = true
			st.outcome.failed++
			continue
		}

		x.recorder.Record(ctx, rule.ID, tokoID, co.CampaignID, actionType,
			models.ExecutionStatusSuccess, nil,
			BuildExecutionData(invocationID, &snap, traces[co.CampaignID]))
		st.recorded[co.CampaignID] = true
		st.outcome.executed++
	}
}

// failCampaigns records each listed campaign as failed with the same error
// message (missing session, snapshot fetch failure, or panic), marking every
// written row in recorded.
func (x *RuleExecutor) failCampaigns(ctx context.Context, rule *models.Rule, invocationID string, tokoID int64, campaignIDs []int64, message string, recorded map[int64]bool) shopOutcome {
	actionType := primaryActionType(rule.Actions)
	for _, campaignID := range campaignIDs {
		msg := message
		x.recorder.Record(ctx, rule.ID, tokoID, campaignID, actionType,
			models.ExecutionStatusFailed, &msg,
			BuildExecutionData(invocationID, nil, nil))
		recorded[campaignID] = true
	}
	return shopOutcome{failed: len(campaignIDs)}
}

// primaryActionType names the log rows after the rule's first platform-facing
// action; a pure-notification rule is labeled by its notify action.
func primaryActionType(actions models.Actions) string {
	for _, a := range actions {
		canonical, ok := models.NormalizeActionType(a.Type)
		if !ok {
			return a.Type
		}
		if canonical != models.ActionTelegramNotification {
			return canonical
		}
	}
	if len(actions) > 0 {
		if canonical, ok := models.NormalizeActionType(actions[0].Type); ok {
			return canonical
		}
		return actions[0].Type
	}
	return "none"
}

func buildNotificationText(rule *models.Rule, result *ExecutionResult) string {
	text := fmt.Sprintf("Rule %q fired: %d executed, %d skipped, %d failed.",
		rule.Name, result.Executed, result.Skipped, result.Failed)
	if msg := rule.NotifyMessage(); msg != "" {
		text = msg + "\n" + text
	}
	return text
}
