package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ExecutionMode represents when a rule becomes due for execution
type ExecutionMode string

const (
	ExecutionModeContinuous     ExecutionMode = "continuous"
	ExecutionModeInterval       ExecutionMode = "interval"
	ExecutionModeScheduledTimes ExecutionMode = "scheduled_times"
	ExecutionModeScheduledDates ExecutionMode = "scheduled_dates"
	ExecutionModeAuto           ExecutionMode = "auto"
)

// String returns the string representation of the mode
func (m ExecutionMode) String() string {
	return string(m)
}

// Valid checks if the mode is valid
func (m ExecutionMode) Valid() bool {
	switch m {
	case ExecutionModeContinuous, ExecutionModeInterval,
		ExecutionModeScheduledTimes, ExecutionModeScheduledDates,
		ExecutionModeAuto:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ExecutionMode
func (m *ExecutionMode) Scan(value any) error {
	if value == nil {
		*m = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*m = ExecutionMode(v)
	case []byte:
		*m = ExecutionMode(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ExecutionMode", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ExecutionMode
func (m ExecutionMode) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid ExecutionMode: %s", m)
	}
	return string(m), nil
}

// CampaignAssignments maps a shop id to the ordered campaign ids the rule
// targets in that shop. Stored as a JSONB object keyed by shop id.
type CampaignAssignments map[int64][]int64

// Value implements the driver.Valuer interface for CampaignAssignments
func (a CampaignAssignments) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for CampaignAssignments
func (a *CampaignAssignments) Scan(value any) error {
	if value == nil {
		*a = CampaignAssignments{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignAssignments", value)
	}

	return json.Unmarshal(bytes, a)
}

// Comparison operators, stored canonically as symbols
const (
	OperatorGreaterThan  = ">"
	OperatorLessThan     = "<"
	OperatorEqual        = "="
	OperatorGreaterEqual = ">="
	OperatorLessEqual    = "<="
)

// NormalizeOperator maps symbol and word forms to the canonical symbol.
// Returns false for operators the evaluator does not understand.
func NormalizeOperator(op string) (string, bool) {
	switch op {
	case ">", "gt", "greater_than":
		return OperatorGreaterThan, true
	case "<", "lt", "less_than":
		return OperatorLessThan, true
	case "=", "==", "eq", "equal":
		return OperatorEqual, true
	case ">=", "gte", "greater_equal", "greater_than_or_equal":
		return OperatorGreaterEqual, true
	case "<=", "lte", "less_equal", "less_than_or_equal":
		return OperatorLessEqual, true
	default:
		return "", false
	}
}

// Condition is one leaf of a condition group: metric OPERATOR value.
// Value is kept as a string so a malformed rule row can still be loaded;
// the evaluator treats an unparseable value as a non-matching leaf.
type Condition struct {
	Metric   string `json:"metric" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    string `json:"value" validate:"required"`
}

// ConditionGroup is an ordered list of leaves AND-ed together
type ConditionGroup []Condition

// ConditionGroups is an ordered list of groups OR-ed together.
// Stored as a JSONB array of arrays.
type ConditionGroups []ConditionGroup

// Value implements the driver.Valuer interface for ConditionGroups
func (g ConditionGroups) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan implements the sql.Scanner interface for ConditionGroups
func (g *ConditionGroups) Scan(value any) error {
	if value == nil {
		*g = ConditionGroups{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ConditionGroups", value)
	}

	return json.Unmarshal(bytes, g)
}

// Action types, canonical forms
const (
	ActionSetBudget            = "set_budget"
	ActionAddBudget            = "add_budget"
	ActionReduceBudget         = "reduce_budget"
	ActionStartCampaign        = "start_campaign"
	ActionPauseCampaign        = "pause_campaign"
	ActionTelegramNotification = "telegram_notification"
)

// Adjustment types for add/reduce budget actions
const (
	AdjustmentAmount     = "amount"
	AdjustmentPercentage = "percentage"
)

// NormalizeActionType maps alias action names to the canonical form.
// Returns false for unknown types; unknown types are not silently skipped,
// they surface as failed execution-log rows.
func NormalizeActionType(t string) (string, bool) {
	switch t {
	case ActionSetBudget:
		return ActionSetBudget, true
	case ActionAddBudget, "increase_budget":
		return ActionAddBudget, true
	case ActionReduceBudget, "decrease_budget":
		return ActionReduceBudget, true
	case ActionStartCampaign, "resume", "resume_campaign":
		return ActionStartCampaign, true
	case ActionPauseCampaign, "pause":
		return ActionPauseCampaign, true
	case ActionTelegramNotification, "notify":
		return ActionTelegramNotification, true
	default:
		return "", false
	}
}

// Action is one mutation spec. Amount is in display units (scaled to the
// platform's minor unit at execution time); Percentage applies to the
// campaign's current budget and must be in (0,100].
type Action struct {
	Type           string   `json:"type" validate:"required"`
	Amount         *int64   `json:"amount,omitempty"`
	Percentage     *float64 `json:"percentage,omitempty"`
	AdjustmentType *string  `json:"adjustmentType,omitempty"`
	Message        *string  `json:"message,omitempty"`
}

// UsesPercentage reports whether the action sizes its budget delta relatively
func (a Action) UsesPercentage() bool {
	if a.AdjustmentType != nil && *a.AdjustmentType == AdjustmentPercentage {
		return true
	}
	return a.AdjustmentType == nil && a.Percentage != nil
}

// Actions is the ordered action list of a rule, stored as a JSONB array
type Actions []Action

// Value implements the driver.Valuer interface for Actions
func (a Actions) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for Actions
func (a *Actions) Scan(value any) error {
	if value == nil {
		*a = Actions{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Actions", value)
	}

	return json.Unmarshal(bytes, a)
}

// Rule represents a user-defined automation rule in the database
type Rule struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	UUID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_rules_uuid" json:"uuid"`
	UserID int64     `gorm:"not null;index:idx_rules_user_id" json:"user_id"`
	Name   string    `gorm:"size:255;not null" json:"name"`

	CampaignAssignments CampaignAssignments `gorm:"type:jsonb;not null" json:"campaign_assignments"`
	ConditionGroups     ConditionGroups     `gorm:"type:jsonb;not null" json:"conditions"`
	Actions             Actions             `gorm:"type:jsonb;not null" json:"actions"`

	ExecutionMode   ExecutionMode  `gorm:"type:varchar(32);not null;default:'continuous';index:idx_rules_execution_mode" json:"execution_mode"`
	IntervalMinutes *int           `json:"interval_minutes,omitempty"`
	ScheduleTimes   pq.StringArray `gorm:"type:text[]" json:"schedule_times,omitempty"` // "HH:MM", platform timezone
	ScheduleDates   pq.StringArray `gorm:"type:text[]" json:"schedule_dates,omitempty"` // RFC3339

	TelegramNotification *bool  `gorm:"default:false" json:"telegram_notification"`
	TelegramChatID       *int64 `json:"telegram_chat_id,omitempty"`

	IsActive *bool `gorm:"default:true;index:idx_rules_is_active" json:"is_active"`

	// Rolling statistics, mutated only through atomic increments
	Triggers     int64   `gorm:"not null;default:0" json:"triggers"`
	SuccessCount int64   `gorm:"not null;default:0" json:"success_count"`
	ErrorCount   int64   `gorm:"not null;default:0" json:"error_count"`
	SuccessRate  float64 `gorm:"not null;default:0" json:"success_rate"`

	LastExecutedAt *time.Time `gorm:"index:idx_rules_last_executed_at" json:"last_executed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Rule) TableName() string {
	return "rules"
}

// RuleFilter represents filter criteria for rule queries
type RuleFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	UserID        *int64
	ExecutionMode *ExecutionMode
	IsActive      *bool
}

var validate = validator.New()

// Validate checks the rule definition at the deserialization boundary so a
// malformed rule is rejected before it ever reaches the evaluator. The engine
// still defends at runtime against legacy rows that predate validation.
func (r *Rule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.ExecutionMode.Valid() {
		return fmt.Errorf("invalid execution mode: %q", r.ExecutionMode)
	}
	if len(r.ConditionGroups) == 0 {
		return fmt.Errorf("rule must have at least one condition group")
	}
	for gi, group := range r.ConditionGroups {
		if len(group) == 0 {
			return fmt.Errorf("condition group %d is empty", gi)
		}
		for li, leaf := range group {
			if err := validate.Struct(leaf); err != nil {
				return fmt.Errorf("condition group %d leaf %d: %w", gi, li, err)
			}
			if _, ok := NormalizeOperator(leaf.Operator); !ok {
				return fmt.Errorf("condition group %d leaf %d: unknown operator %q", gi, li, leaf.Operator)
			}
		}
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule must have at least one action")
	}
	for i, action := range r.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// ValidateAction checks one action spec. Percentage outside (0,100] is a hard
// validation error, never silently clamped.
func ValidateAction(a Action) error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	canonical, ok := NormalizeActionType(a.Type)
	if !ok {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	switch canonical {
	case ActionSetBudget:
		if a.Amount == nil || *a.Amount <= 0 {
			return fmt.Errorf("set_budget requires a positive amount")
		}
	case ActionAddBudget, ActionReduceBudget:
		if a.UsesPercentage() {
			if a.Percentage == nil || *a.Percentage <= 0 || *a.Percentage > 100 {
				return fmt.Errorf("percentage must be in (0,100]")
			}
		} else if a.Amount == nil || *a.Amount <= 0 {
			return fmt.Errorf("%s requires a positive amount or a percentage", canonical)
		}
	case ActionTelegramNotification:
		if a.Message == nil || *a.Message == "" {
			return fmt.Errorf("telegram_notification requires a message")
		}
	}
	return nil
}

// HasTelegramNotification reports whether the rule wants a per-invocation
// notification, either via the flag or an explicit notify action.
func (r *Rule) HasTelegramNotification() bool {
	if r.TelegramNotification != nil && *r.TelegramNotification {
		return true
	}
	for _, a := range r.Actions {
		if canonical, ok := NormalizeActionType(a.Type); ok && canonical == ActionTelegramNotification {
			return true
		}
	}
	return false
}

// NotifyMessage returns the user-configured notification text, if any
func (r *Rule) NotifyMessage() string {
	for _, a := range r.Actions {
		canonical, ok := NormalizeActionType(a.Type)
		if ok && canonical == ActionTelegramNotification && a.Message != nil {
			return *a.Message
		}
	}
	return ""
}
