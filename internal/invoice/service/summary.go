package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
)

type summaryRow struct {
	ID          snowflake.ID
	Status      invoicedomain.InvoiceStatus
	TotalAmount decimal.Decimal
}

// GetBillingSummary aggregates the invoices issued for a case in a calendar
// year. Cancelled invoices are counted but contribute nothing to the billed
// total.
func (s *Service) GetBillingSummary(ctx context.Context, caseID string, year int) (invoicedomain.BillingSummary, error) {
	id, err := snowflake.ParseString(caseID)
	if err != nil || id == 0 {
		return invoicedomain.BillingSummary{}, invoicedomain.ErrCaseNotFound
	}
	if year == 0 {
		year = s.clock.Now().UTC().Year()
	}
	if year < 1900 || year > 9999 {
		return invoicedomain.BillingSummary{}, invoicedomain.ErrInvalidYear
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var rows []summaryRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, status, total_amount
		 FROM invoices
		 WHERE case_id = ? AND issue_date >= ? AND issue_date < ?`,
		id,
		start,
		end,
	).Scan(&rows).Error; err != nil {
		return invoicedomain.BillingSummary{}, err
	}

	summary := invoicedomain.BillingSummary{
		CaseID:      id.String(),
		Year:        year,
		TotalBilled: decimal.Zero,
		TotalPaid:   decimal.Zero,
		Outstanding: decimal.Zero,
	}
	if base, err := s.currencySvc.GetBaseCurrency(ctx); err == nil {
		summary.Currency = base.Code
	}

	for _, row := range rows {
		summary.InvoiceCount++
		if row.Status == invoicedomain.InvoiceStatusPaid {
			summary.PaidInvoiceCount++
		}
		if row.Status == invoicedomain.InvoiceStatusCancelled {
			continue
		}
		summary.TotalBilled = summary.TotalBilled.Add(row.TotalAmount)

		paid, err := s.completedPaymentTotal(ctx, s.db, row.ID)
		if err != nil {
			return invoicedomain.BillingSummary{}, err
		}
		summary.TotalPaid = summary.TotalPaid.Add(paid)
	}
	summary.Outstanding = summary.TotalBilled.Sub(summary.TotalPaid)
	return summary, nil
}
