// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tokopulse/tokopulse/models"
	"gorm.io/gorm"
)

// RuleRepositoryImpl implements RuleRepository interface
type RuleRepositoryImpl struct {
	*BaseRepository[models.Rule, models.RuleFilter]
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &RuleRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Rule, models.RuleFilter](db),
	}
}

// ByUUID retrieves a rule by its UUID
func (r *RuleRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	db := r.getDB(ctx)

	var rule models.Rule
	err := db.Where("uuid = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rule by UUID %s: %w", id, err)
	}

	return &rule, nil
}

// ByFilter retrieves rules based on filter criteria
func (r *RuleRepositoryImpl) ByFilter(ctx context.Context, filter models.RuleFilter, orderBy string, limit, offset int) ([]*models.Rule, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Rule{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ExecutionMode != nil {
		query = query.Where("execution_mode = ?", *filter.ExecutionMode)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
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

	var rules []*models.Rule
	if err := query.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to find rules by filter: %w", err)
	}

	return rules, nil
}

// ListActive retrieves active rules ordered by id, paginated
func (r *RuleRepositoryImpl) ListActive(ctx context.Context, limit, offset int) ([]*models.Rule, error) {
	db := r.getDB(ctx)

	var rules []*models.Rule
	err := db.Where("is_active = ?", true).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	return rules, nil
}

// IncrementStatistics bumps the rolling counters in one atomic UPDATE.
// All SET expressions read the pre-update row, so success_rate is computed
// against the post-increment counts inside the same statement.
func (r *RuleRepositoryImpl) IncrementStatistics(ctx context.Context, ruleID uint, succeeded bool) error {
	db := r.getDB(ctx)

	updates := map[string]any{
		"triggers":   gorm.Expr("triggers + 1"),
		"updated_at": time.Now().UTC(),
	}
	if succeeded {
		updates["success_count"] = gorm.Expr("success_count + 1")
		updates["success_rate"] = gorm.Expr("(success_count + 1) * 100.0 / (triggers + 1)")
	} else {
		updates["error_count"] = gorm.Expr("error_count + 1")
		updates["success_rate"] = gorm.Expr("success_count * 100.0 / (triggers + 1)")
	}

	result := db.Model(&models.Rule{}).Where("id = ?", ruleID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to increment rule statistics: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule %d not found for statistics update", ruleID)
	}

	return nil
}

// TouchLastExecuted stamps the rule's last execution time
func (r *RuleRepositoryImpl) TouchLastExecuted(ctx context.Context, ruleID uint, executedAt time.Time) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Rule{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{
			"last_executed_at": executedAt,
			"updated_at":       executedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch rule last_executed_at: %w", err)
	}

	return nil
}

// Delete removes a rule; its execution logs cascade at the database level
func (r *RuleRepositoryImpl) Delete(ctx context.Context, ruleID uint) error {
	db := r.getDB(ctx)

	if err := db.Delete(&models.Rule{}, ruleID).Error; err != nil {
		return fmt.Errorf("failed to delete rule %d: %w", ruleID, err)
	}

	return nil
}
