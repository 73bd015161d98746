// Package testing provides test utilities and database setup for testing the rule engine
package testing

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/tokopulse/tokopulse/models"
	"github.com/tokopulse/tokopulse/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// RuleOption mutates the default rule fixture before it is persisted
type RuleOption func(*models.Rule)

// WithExecutionMode overrides the fixture's execution mode
func WithExecutionMode(mode models.ExecutionMode) RuleOption {
	return func(r *models.Rule) { r.ExecutionMode = mode }
}

// WithAssignments overrides the fixture's shop-to-campaigns map
func WithAssignments(assignments models.CampaignAssignments) RuleOption {
	return func(r *models.Rule) { r.CampaignAssignments = assignments }
}

// WithActions overrides the fixture's action list
func WithActions(actions models.Actions) RuleOption {
	return func(r *models.Rule) { r.Actions = actions }
}

// WithConditionGroups overrides the fixture's condition groups
func WithConditionGroups(groups models.ConditionGroups) RuleOption {
	return func(r *models.Rule) { r.ConditionGroups = groups }
}

// WithInactive marks the fixture rule inactive
func WithInactive() RuleOption {
	return func(r *models.Rule) { r.IsActive = utils.ToPtr(false) }
}

// CreateTestRule creates a persisted rule with sane defaults: one shop, two
// campaigns, a single roas condition, and a pause action.
func (tf *TestFixtures) CreateTestRule(opts ...RuleOption) (*models.Rule, error) {
	tokoID := int64(rand.Intn(900000) + 100000)

	rule := &models.Rule{
		UUID:   uuid.New(),
		UserID: int64(rand.Intn(900000) + 100000),
		Name:   fmt.Sprintf("test rule %d", rand.Intn(10000)),
		CampaignAssignments: models.CampaignAssignments{
			tokoID: {1001, 1002},
		},
		ConditionGroups: models.ConditionGroups{
			{{Metric: "roas", Operator: models.OperatorLessThan, Value: "1"}},
		},
		Actions: models.Actions{
			{Type: models.ActionPauseCampaign},
		},
		ExecutionMode: models.ExecutionModeContinuous,
		IsActive:      utils.ToPtr(true),
	}

	for _, opt := range opts {
		opt(rule)
	}

	if err := tf.DB.DB.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create test rule: %w", err)
	}
	return rule, nil
}

// CreateTestExecutionLog creates a persisted execution log row for the rule
func (tf *TestFixtures) CreateTestExecutionLog(ruleID uint, campaignID int64, status models.ExecutionStatus) (*models.ExecutionLog, error) {
	entry := &models.ExecutionLog{
		RuleID:     ruleID,
		CampaignID: campaignID,
		TokoID:     int64(rand.Intn(900000) + 100000),
		ActionType: models.ActionPauseCampaign,
		Status:     status,
		ExecutedAt: utils.UTCNow(),
	}
	if status == models.ExecutionStatusFailed {
		entry.ErrorMessage = utils.ToPtr("test failure")
	}

	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test execution log: %w", err)
	}
	return entry, nil
}
