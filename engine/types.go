// Package engine implements the rule execution engine: condition evaluation,
// paced action execution against the ad platform, and durable outcome
// recording. One RuleExecutor invocation handles one due rule.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/tokopulse/tokopulse/utils"
)

// Campaign states as reported by the platform
const (
	CampaignStateOngoing = "ongoing"
	CampaignStatePaused  = "paused"
)

// CampaignSnapshot is a point-in-time read of one campaign's metrics, owned by
// a single orchestrator invocation and never persisted as-is.
//
// DailyBudget is kept in the platform's minor unit because budget mutations
// are computed from it. Money metrics (Cost, CPC, Balance) are in display
// units because that is what users write into rule conditions.
type CampaignSnapshot struct {
	CampaignID  int64
	Name        string
	State       string
	DailyBudget int64
	Cost        float64
	Impressions float64
	Clicks      float64
	CTR         float64
	CPC         float64
	ROAS        float64
	Conversions float64
	Balance     float64
}

// MetricValue resolves a condition metric name, including the aliases the
// rule editor has historically accepted. Unknown names report found=false and
// make the leaf evaluate to false rather than aborting the batch.
func (s CampaignSnapshot) MetricValue(name string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cost", "spend":
		return s.Cost, true
	case "impression", "impressions":
		return s.Impressions, true
	case "click", "clicks":
		return s.Clicks, true
	case "ctr":
		return s.CTR, true
	case "cpc":
		return s.CPC, true
	case "roas", "roi":
		return s.ROAS, true
	case "conversion", "conversions", "order", "orders", "checkout":
		return s.Conversions, true
	case "balance":
		return s.Balance, true
	case "budget", "daily_budget":
		return float64(s.DailyBudget) / utils.BudgetScale, true
	default:
		return 0, false
	}
}

// TokoSession is the shop-scoped credential used for every platform call.
// Sessions are produced by the account-connection flow, which is outside the
// engine; the engine only consumes them through CredentialProvider.
type TokoSession struct {
	TokoID    int64     `json:"toko_id"`
	Username  string    `json:"username"`
	Cookie    string    `json:"cookie"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MutationOp identifies the platform mutation kind
type MutationOp string

const (
	OpEditBudget MutationOp = "edit_budget"
	OpPause      MutationOp = "pause"
	OpResume     MutationOp = "resume"
)

// MutationParams carries op-specific arguments; Budget is in minor units
type MutationParams struct {
	Budget *int64
}

// MutationResult is the platform's answer to one mutation. Message is the
// authoritative human-readable error text on failure and must reach the audit
// log verbatim.
type MutationResult struct {
	Success bool
	Message string
}

// CredentialProvider yields the current session for a shop.
// Absence is the explicit ErrSessionUnavailable branch, never a nil session
// with a nil error.
type CredentialProvider interface {
	GetSession(ctx context.Context, tokoID int64) (*TokoSession, error)
}

// PlatformClient is the engine's view of the external ad platform: one bulk
// metrics read per shop plus single-campaign mutations.
type PlatformClient interface {
	FetchAllCampaigns(ctx context.Context, session *TokoSession) (map[int64]CampaignSnapshot, error)
	Mutate(ctx context.Context, session *TokoSession, op MutationOp, campaignID int64, params MutationParams) (MutationResult, error)
}

// Notifier delivers the per-invocation summary to the user's channel.
// Fire-and-forget from the engine's perspective.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Leaser guards against overlapping invocations of the same rule. Acquire
// returning false is a clean no-op for the caller, not an error.
type Leaser interface {
	Acquire(ctx context.Context, ruleID uint) (bool, error)
	Release(ctx context.Context, ruleID uint) error
}
