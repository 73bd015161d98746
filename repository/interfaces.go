// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tokopulse/tokopulse/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// RuleRepository defines operations for automation rules
type RuleRepository interface {
	Repository[models.Rule, models.RuleFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Rule, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Rule, error)
	// IncrementStatistics atomically bumps triggers and either success_count or
	// error_count and recomputes success_rate in the same UPDATE, so two
	// overlapping invocations of the same rule never lose an increment.
	IncrementStatistics(ctx context.Context, ruleID uint, succeeded bool) error
	TouchLastExecuted(ctx context.Context, ruleID uint, executedAt time.Time) error
	Delete(ctx context.Context, ruleID uint) error
}

// ExecutionLogRepository defines operations for execution audit logs.
// Rows are append-only; there is no update operation.
type ExecutionLogRepository interface {
	Repository[models.ExecutionLog, models.ExecutionLogFilter]
	ListByRule(ctx context.Context, ruleID uint, limit, offset int) ([]*models.ExecutionLog, error)
	ListByRuleAndCampaign(ctx context.Context, ruleID uint, campaignID int64, limit, offset int) ([]*models.ExecutionLog, error)
	CountByRuleAndStatus(ctx context.Context, ruleID uint, status models.ExecutionStatus) (int64, error)
	DeleteByRule(ctx context.Context, ruleID uint) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
