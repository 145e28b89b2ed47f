package service

import (
	"context"
	"time"

	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/casebill/internal/invoice/format"
	"github.com/smallbiznis/casebill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// nextInvoiceNumber claims the next value of the issue year's sequence. The
// sequence row stays locked until tx ends, so numbers are never handed out
// twice and a rolled back generation does not consume one.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, prefix string, issueDate time.Time) (string, error) {
	year := issueDate.UTC().Year()

	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&invoicedomain.InvoiceSequence{Year: year, LastValue: 0}).Error; err != nil {
		return "", err
	}

	var seq invoicedomain.InvoiceSequence
	if err := db.ForUpdate(tx.WithContext(ctx)).
		Where("year = ?", year).
		Take(&seq).Error; err != nil {
		return "", err
	}

	next := seq.LastValue + 1
	res := tx.WithContext(ctx).Exec(
		`UPDATE invoice_sequences SET last_value = ? WHERE year = ? AND last_value = ?`,
		next,
		year,
		seq.LastValue,
	)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected != 1 {
		return "", invoicedomain.ErrInvariantViolation
	}

	return invoiceformat.FormatInvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, prefix, issueDate, next)
}
