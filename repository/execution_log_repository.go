// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tokopulse/tokopulse/models"
	"gorm.io/gorm"
)

// ExecutionLogRepositoryImpl implements ExecutionLogRepository interface
type ExecutionLogRepositoryImpl struct {
	*BaseRepository[models.ExecutionLog, models.ExecutionLogFilter]
}

// NewExecutionLogRepository creates a new execution log repository
func NewExecutionLogRepository(db *gorm.DB) ExecutionLogRepository {
	return &ExecutionLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ExecutionLog, models.ExecutionLogFilter](db),
	}
}

// ByFilter retrieves execution logs based on filter criteria
func (r *ExecutionLogRepositoryImpl) ByFilter(ctx context.Context, filter models.ExecutionLogFilter, orderBy string, limit, offset int) ([]*models.ExecutionLog, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.ExecutionLog{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.RuleID != nil {
		query = query.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.TokoID != nil {
		query = query.Where("toko_id = ?", *filter.TokoID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ExecutedAfter != nil {
		query = query.Where("executed_at >= ?", *filter.ExecutedAfter)
	}
	if filter.ExecutedBefore != nil {
		query = query.Where("executed_at <= ?", *filter.ExecutedBefore)
	}
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var logs []*models.ExecutionLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to find execution logs by filter: %w", err)
	}

	return logs, nil
}

// ListByRule retrieves execution logs for a rule, newest first, with pagination
func (r *ExecutionLogRepositoryImpl) ListByRule(ctx context.Context, ruleID uint, limit, offset int) ([]*models.ExecutionLog, error) {
	db := r.getDB(ctx)

	var logs []*models.ExecutionLog
	err := db.Where("rule_id = ?", ruleID).
		Order("executed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs by rule: %w", err)
	}

	return logs, nil
}

// ListByRuleAndCampaign retrieves the audit trail of one campaign under one rule
func (r *ExecutionLogRepositoryImpl) ListByRuleAndCampaign(ctx context.Context, ruleID uint, campaignID int64, limit, offset int) ([]*models.ExecutionLog, error) {
	db := r.getDB(ctx)

	var logs []*models.ExecutionLog
	err := db.Where("rule_id = ? AND campaign_id = ?", ruleID, campaignID).
		Order("executed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs by rule and campaign: %w", err)
	}

	return logs, nil
}

// CountByRuleAndStatus counts log rows of one status for a rule
func (r *ExecutionLogRepositoryImpl) CountByRuleAndStatus(ctx context.Context, ruleID uint, status models.ExecutionStatus) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.ExecutionLog{}).
		Where("rule_id = ? AND status = ?", ruleID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count execution logs: %w", err)
	}

	return count, nil
}

// DeleteByRule removes all execution logs of a rule (rule deletion cascade path
// for databases created without the FK constraint)
func (r *ExecutionLogRepositoryImpl) DeleteByRule(ctx context.Context, ruleID uint) error {
	db := r.getDB(ctx)

	if err := db.Where("rule_id = ?", ruleID).Delete(&models.ExecutionLog{}).Error; err != nil {
		return fmt.Errorf("failed to delete execution logs for rule %d: %w", ruleID, err)
	}

	return nil
}

// DeleteOlderThan removes audit rows past the retention window and reports how
// many were dropped
func (r *ExecutionLogRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)

	result := db.Where("executed_at < ?", cutoff).Delete(&models.ExecutionLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune execution logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}
