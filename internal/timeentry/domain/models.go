// Package domain is the billing engine's read-only view of tracked time.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TimeEntry is owned by the time-tracking store. The billing engine never
// edits it; it only links it to an invoice line.
type TimeEntry struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID      snowflake.ID `gorm:"not null;index" json:"case_id"`
	WorkerID    snowflake.ID `gorm:"not null;index" json:"worker_id"`
	Minutes     int          `gorm:"not null" json:"minutes"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `gorm:"not null;index" json:"created_at"`
}

func (TimeEntry) TableName() string { return "time_entries" }

// Source lists time entries that no invoice line has claimed yet. Periods are
// inclusive calendar dates in UTC.
type Source interface {
	ListUnbilled(ctx context.Context, db *gorm.DB, caseID snowflake.ID, periodStart, periodEnd time.Time) ([]TimeEntry, error)
}
