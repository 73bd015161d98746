// Package models contains domain entities and business models for the rule execution engine
package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ExecutionStatus represents the outcome of one (rule, campaign) execution
type ExecutionStatus string

const (
	// ExecutionStatusSuccess means conditions matched and every action applied
	ExecutionStatusSuccess ExecutionStatus = "success"
	// ExecutionStatusFailed means the mutation (or its precondition) failed
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusSkipped means conditions did not hold; counted toward the
	// rule's success statistic because not acting was the correct outcome
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// String returns the string representation of the status
func (s ExecutionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusSkipped:
		return true
	default:
		return false
	}
}

// CountsAsSuccess reports whether the status increments success_count
func (s ExecutionStatus) CountsAsSuccess() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusSkipped
}

// Scan implements the sql.Scanner interface for ExecutionStatus
func (s *ExecutionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ExecutionStatus(v)
	case []byte:
		*s = ExecutionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ExecutionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ExecutionStatus
func (s ExecutionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ExecutionStatus: %s", s)
	}
	return string(s), nil
}

// ExecutionLog is the append-only audit record of one (rule, campaign) outcome.
// Exactly one row is written per campaign per orchestrator invocation,
// regardless of whether the conditions matched.
type ExecutionLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RuleID       uint            `gorm:"not null;index:idx_execution_logs_rule_id" json:"rule_id"`
	Rule         *Rule           `gorm:"foreignKey:RuleID;references:ID;constraint:OnDelete:CASCADE" json:"rule,omitempty"`
	CampaignID   int64           `gorm:"not null;index:idx_execution_logs_campaign_id" json:"campaign_id"`
	TokoID       int64           `gorm:"not null;index:idx_execution_logs_toko_id" json:"toko_id"`
	ActionType   string          `gorm:"size:64;not null" json:"action_type"`
	Status       ExecutionStatus `gorm:"type:varchar(16);not null;index:idx_execution_logs_status" json:"status"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	// ExecutionData holds the snapshot subset and the per-leaf evaluation
	// trace for the audit trail, as an opaque JSON blob
	ExecutionData datatypes.JSON `gorm:"type:jsonb" json:"execution_data,omitempty"`
	ExecutedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_execution_logs_executed_at" json:"executed_at"`
}

func (ExecutionLog) TableName() string {
	return "execution_logs"
}

// ExecutionLogFilter represents filter criteria for execution log queries
type ExecutionLogFilter struct {
	ID             *uint
	RuleID         *uint
	CampaignID     *int64
	TokoID         *int64
	Status         *ExecutionStatus
	ExecutedAfter  *time.Time
	ExecutedBefore *time.Time
}

// IsFailed reports whether the row records a failed execution
func (l *ExecutionLog) IsFailed() bool {
	return l.Status == ExecutionStatusFailed
}
