package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/timeentry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Source {
	return &repo{}
}

func (r *repo) ListUnbilled(ctx context.Context, db *gorm.DB, caseID snowflake.ID, periodStart, periodEnd time.Time) ([]domain.TimeEntry, error) {
	start := clock.StartOfDay(periodStart)
	endExclusive := clock.StartOfDay(periodEnd).AddDate(0, 0, 1)

	var items []domain.TimeEntry
	err := db.WithContext(ctx).Raw(
		`SELECT te.id, te.case_id, te.worker_id, te.minutes, te.description, te.created_at
		 FROM time_entries te
		 WHERE te.case_id = ?
		   AND te.created_at >= ?
		   AND te.created_at < ?
		   AND te.minutes > 0
		   AND NOT EXISTS (
			 SELECT 1 FROM invoice_time_entries ite WHERE ite.time_entry_id = te.id
		   )
		 ORDER BY te.created_at ASC, te.id ASC`,
		caseID,
		start,
		endExclusive,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
