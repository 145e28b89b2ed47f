package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/expense/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Source {
	return &repo{}
}

func (r *repo) ListUnbilled(ctx context.Context, db *gorm.DB, caseID snowflake.ID, periodStart, periodEnd time.Time) ([]domain.Expense, error) {
	start := clock.StartOfDay(periodStart)
	endExclusive := clock.StartOfDay(periodEnd).AddDate(0, 0, 1)

	var items []domain.Expense
	err := db.WithContext(ctx).
		Where("case_id = ? AND is_billable = ? AND is_billed = ?", caseID, true, false).
		Where("expense_date >= ? AND expense_date < ?", start, endExclusive).
		Order("expense_date ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkBilled(ctx context.Context, db *gorm.DB, expenseID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE expenses SET is_billed = ? WHERE id = ? AND is_billed = ?`,
		true,
		expenseID,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
