package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.InvoiceDetails, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	return s.loadDetails(ctx, s.db, *invoice)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	query := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{})
	if req.CaseID != nil {
		query = query.Where("case_id = ?", *req.CaseID)
	}
	if req.Status != nil {
		// Overdue is derived, so it is selected from sent invoices past due.
		if *req.Status == invoicedomain.InvoiceStatusOverdue {
			query = query.Where("status = ? AND due_date < ?", invoicedomain.InvoiceStatusSent, clock.Today(s.clock))
		} else {
			query = query.Where("status = ?", *req.Status)
		}
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil || cursorID == 0 {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		query = query.Where("id < ?", cursorID)
	}

	var items []*invoicedomain.Invoice
	if err := query.Order("id DESC").Limit(pageSize + 1).Find(&items).Error; err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := invoicedomain.ListInvoiceResponse{Invoices: make([]invoicedomain.InvoiceDetails, 0, len(items))}
	for _, item := range items {
		details, err := s.loadDetails(ctx, s.db, *item)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		resp.Invoices = append(resp.Invoices, details)
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) SendInvoice(ctx context.Context, id string, actor string) (invoicedomain.InvoiceDetails, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	if invoice.Status.IsTerminal() {
		return invoicedomain.InvoiceDetails{}, invoicedomain.ErrInvoiceImmutable
	}

	details, err := s.deliver(ctx, invoiceID, actor)
	if err != nil {
		var dispatchErr *invoicedomain.DispatchError
		if errors.As(err, &dispatchErr) {
			current, loadErr := s.loadDetails(ctx, s.db, *invoice)
			if loadErr != nil {
				return invoicedomain.InvoiceDetails{}, loadErr
			}
			return current, err
		}
		return invoicedomain.InvoiceDetails{}, err
	}
	return details, nil
}

// deliver renders and dispatches the invoice, then records it as sent. A
// failed dispatch leaves the stored status untouched and is returned as a
// *DispatchError.
func (s *Service) deliver(ctx context.Context, invoiceID snowflake.ID, actor string) (invoicedomain.InvoiceDetails, error) {
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	details, err := s.loadDetails(ctx, s.db, *invoice)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	if dispatchErr := s.dispatch(ctx, details); dispatchErr != nil {
		wrapped := &invoicedomain.DispatchError{InvoiceID: invoiceID.String(), Err: dispatchErr}
		s.log.Warn("invoice dispatch failed",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(dispatchErr),
		)
		s.metrics.RecordDispatchFailure(ctx)
		s.emitAudit(ctx, actor, "invoice.dispatch_failed", invoice, map[string]any{"error": dispatchErr.Error()})
		s.publish(ctx, events.InvoiceDispatchFailed, invoice, map[string]any{"error": dispatchErr.Error()})
		return invoicedomain.InvoiceDetails{}, wrapped
	}

	var sent *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if locked == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if locked.Status.IsTerminal() {
			return invoicedomain.ErrInvoiceImmutable
		}

		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, sent_at = ?, updated_at = ?
			 WHERE id = ?`,
			invoicedomain.InvoiceStatusSent,
			now,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}
		previous := locked.Status
		locked.Status = invoicedomain.InvoiceStatusSent
		locked.SentAt = &now
		locked.UpdatedAt = now
		sent = locked
		s.log.Info("invoice sent",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("previous_status", string(previous)),
		)
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	s.emitAudit(ctx, actor, "invoice.sent", sent, nil)
	s.publish(ctx, events.InvoiceSent, sent, nil)
	return s.loadDetails(ctx, s.db, *sent)
}

func (s *Service) CancelInvoice(ctx context.Context, id string, actor string, reason string) (invoicedomain.InvoiceDetails, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	var cancelled *invoicedomain.Invoice
	var previous invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.IsTerminal() {
			return invoicedomain.ErrInvoiceImmutable
		}
		paid, err := s.completedPaymentTotal(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return invoicedomain.ErrInvoiceHasPayments
		}

		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = ?, cancelled_at = ?, updated_at = ?
			 WHERE id = ?`,
			invoicedomain.InvoiceStatusCancelled,
			now,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}
		previous = invoice.Status
		invoice.Status = invoicedomain.InvoiceStatusCancelled
		invoice.CancelledAt = &now
		invoice.UpdatedAt = now
		cancelled = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	metadata := map[string]any{"previous_status": string(previous)}
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata["reason"] = reason
	}
	s.emitAudit(ctx, actor, "invoice.cancelled", cancelled, metadata)
	s.publish(ctx, events.InvoiceCancelled, cancelled, metadata)
	return s.loadDetails(ctx, s.db, *cancelled)
}

func (s *Service) RecomputeTotals(ctx context.Context, id string) (invoicedomain.InvoiceDetails, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	var updated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.IsTerminal() {
			return invoicedomain.ErrInvoiceImmutable
		}
		if err := s.applyTotals(ctx, tx, invoice); err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	return s.loadDetails(ctx, s.db, *updated)
}

func (s *Service) UpdatePricing(ctx context.Context, id string, req invoicedomain.UpdatePricingRequest) (invoicedomain.InvoiceDetails, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}
	if req.DiscountPercent != nil && !validPercent(*req.DiscountPercent) {
		return invoicedomain.InvoiceDetails{}, invoicedomain.ErrInvalidDiscount
	}
	if req.TaxRate != nil && !validPercent(*req.TaxRate) {
		return invoicedomain.InvoiceDetails{}, invoicedomain.ErrInvalidTaxRate
	}

	var updated *invoicedomain.Invoice
	var before invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.IsTerminal() {
			return invoicedomain.ErrInvoiceImmutable
		}
		if invoice.Status != invoicedomain.InvoiceStatusDraft {
			return invoicedomain.ErrInvoiceNotDraft
		}
		before = *invoice

		if req.DiscountPercent != nil {
			invoice.DiscountPercent = *req.DiscountPercent
		}
		if req.TaxRate != nil {
			invoice.TaxRate = *req.TaxRate
		}
		if err := s.applyTotals(ctx, tx, invoice); err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return invoicedomain.InvoiceDetails{}, err
	}

	s.emitAudit(ctx, req.Actor, "invoice.pricing_updated", updated, map[string]any{
		"previous_discount_percent": before.DiscountPercent.String(),
		"previous_tax_rate":         before.TaxRate.String(),
		"previous_total_amount":     before.TotalAmount.StringFixed(2),
	})
	return s.loadDetails(ctx, s.db, *updated)
}

// applyTotals rederives the money block from the stored lines and writes it
// only when something changed, so repeated calls are no-ops.
func (s *Service) applyTotals(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	var timeLines []invoicedomain.InvoiceTimeEntry
	if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Find(&timeLines).Error; err != nil {
		return err
	}
	var items []invoicedomain.InvoiceExpenseItem
	if err := tx.WithContext(ctx).Where("invoice_id = ?", invoice.ID).Find(&items).Error; err != nil {
		return err
	}

	totals := invoicedomain.Recompute(lineTotals(timeLines), itemAmounts(items), invoice.DiscountPercent, invoice.TaxRate)
	stored, err := s.storedPricing(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	if totals.Equal(invoice.Totals()) &&
		stored.DiscountPercent.Equal(invoice.DiscountPercent) &&
		stored.TaxRate.Equal(invoice.TaxRate) {
		return nil
	}

	now := s.clock.Now().UTC()
	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET discount_percent = ?, tax_rate = ?,
		     subtotal_time = ?, subtotal_expenses = ?, discount_amount = ?,
		     tax_amount = ?, total_amount = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.DiscountPercent,
		invoice.TaxRate,
		totals.SubtotalTime,
		totals.SubtotalExpenses,
		totals.DiscountAmount,
		totals.TaxAmount,
		totals.TotalAmount,
		now,
		invoice.ID,
	).Error; err != nil {
		return fmt.Errorf("update invoice totals: %w", err)
	}

	invoice.SubtotalTime = totals.SubtotalTime
	invoice.SubtotalExpenses = totals.SubtotalExpenses
	invoice.DiscountAmount = totals.DiscountAmount
	invoice.TaxAmount = totals.TaxAmount
	invoice.TotalAmount = totals.TotalAmount
	invoice.UpdatedAt = now
	return nil
}

type pricingRow struct {
	DiscountPercent decimal.Decimal
	TaxRate         decimal.Decimal
}

func (s *Service) storedPricing(ctx context.Context, tx *gorm.DB, id snowflake.ID) (pricingRow, error) {
	var row pricingRow
	err := tx.WithContext(ctx).Raw(
		`SELECT discount_percent, tax_rate FROM invoices WHERE id = ?`,
		id,
	).Scan(&row).Error
	return row, err
}

func (s *Service) findInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}
