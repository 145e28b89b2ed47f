package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/rate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResolveRate walks the precedence tiers and returns the first active match.
// Within a tier the lowest id wins so resolution is deterministic.
func (s *Service) ResolveRate(ctx context.Context, workerID snowflake.ID, caseCategory string) (*domain.BillingRate, error) {
	caseCategory = strings.TrimSpace(caseCategory)

	if workerID != 0 {
		// A worker rate for this category is preferred over the worker's other rates.
		rate, err := s.first(ctx, s.db.WithContext(ctx).
			Where("is_active = ? AND worker_id = ?", true, workerID).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:                "CASE WHEN case_category = ? THEN 0 WHEN case_category IS NULL THEN 1 ELSE 2 END",
				Vars:               []interface{}{caseCategory},
				WithoutParentheses: true,
			}}))
		if err != nil || rate != nil {
			return rate, err
		}
	}

	if caseCategory != "" {
		rate, err := s.first(ctx, s.db.WithContext(ctx).
			Where("is_active = ? AND worker_id IS NULL AND case_category = ?", true, caseCategory))
		if err != nil || rate != nil {
			return rate, err
		}
	}

	return s.first(ctx, s.db.WithContext(ctx).
		Where("is_active = ? AND worker_id IS NULL AND case_category IS NULL AND rate_type = ?", true, domain.RateTypeHourly))
}

func (s *Service) first(ctx context.Context, stmt *gorm.DB) (*domain.BillingRate, error) {
	var items []domain.BillingRate
	if err := stmt.Order("id ASC").Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
