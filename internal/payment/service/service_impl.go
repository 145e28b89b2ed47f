package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/authorization"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/invoice/render"
	obsmetrics "github.com/smallbiznis/casebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	AppConfig config.Config
	Repo      paymentdomain.Repository
	Directory casedomain.Directory
	PDF       pdf.Provider

	Events     events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	firmName   string
	repo       paymentdomain.Repository
	directory  casedomain.Directory
	pdf        pdf.Provider
	events     events.Publisher
	obsMetrics *obsmetrics.Metrics
	auditSvc   auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      c,
		firmName:   p.AppConfig.FirmName,
		repo:       p.Repo,
		directory:  p.Directory,
		pdf:        p.PDF,
		events:     p.Events,
		obsMetrics: p.ObsMetrics,
		auditSvc:   p.AuditSvc,
	}
}

// RecordPayment stores a completed payment and, in the same transaction,
// marks the invoice paid once completed payments cover its total.
func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidInvoiceID
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidAmount
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrNonPositiveAmount
	}
	method := paymentdomain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidMethod
	}

	now := s.clock.Now().UTC()
	paymentDate := now
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = req.PaymentDate.UTC()
	}

	var (
		result     paymentdomain.RecordPaymentResult
		invoice    invoicedomain.Invoice
		becamePaid bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.loadInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if locked == nil {
			return paymentdomain.ErrInvoiceNotFound
		}
		if locked.Status == invoicedomain.InvoiceStatusCancelled {
			return paymentdomain.ErrInvoiceCancelled
		}

		payment := paymentdomain.Payment{
			ID:                    s.genID.Generate(),
			PaymentUID:            uuid.New(),
			InvoiceID:             invoiceID,
			Amount:                amount,
			CurrencyID:            locked.CurrencyID,
			Method:                method,
			ExternalTransactionID: trimmedOrNil(req.ExternalTxID),
			Status:                paymentdomain.StatusCompleted,
			PaymentDate:           paymentDate,
			Notes:                 strings.TrimSpace(req.Notes),
			ProcessedBy:           processedBy(req.Actor),
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if len(req.GatewayResponse) > 0 {
			payment.GatewayResponse = datatypes.JSONMap(req.GatewayResponse)
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		paid, err := s.repo.CompletedTotal(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		if locked.Status != invoicedomain.InvoiceStatusPaid && paid.GreaterThanOrEqual(locked.TotalAmount) {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE invoices
				 SET status = ?, paid_at = ?, updated_at = ?
				 WHERE id = ?`,
				invoicedomain.InvoiceStatusPaid,
				now,
				now,
				invoiceID,
			).Error; err != nil {
				return err
			}
			locked.Status = invoicedomain.InvoiceStatusPaid
			locked.PaidAt = &now
			becamePaid = true
		}

		balance := locked.TotalAmount.Sub(paid)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		result = paymentdomain.RecordPaymentResult{
			Payment:       payment,
			InvoiceStatus: string(locked.Status),
			AmountPaid:    paid,
			BalanceDue:    balance,
			Overpaid:      paid.GreaterThan(locked.TotalAmount),
		}
		invoice = *locked
		return nil
	})
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("method", string(method)),
		zap.Bool("overpaid", result.Overpaid),
	)
	s.obsMetrics.RecordPayment(ctx, string(method), string(paymentdomain.StatusCompleted))

	metadata := map[string]any{
		"invoice_id":     invoiceID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"amount":         amount.StringFixed(2),
		"method":         string(method),
		"overpaid":       result.Overpaid,
	}
	if result.Payment.ExternalTransactionID != nil {
		metadata["external_transaction_id"] = *result.Payment.ExternalTransactionID
	}
	if len(req.GatewayResponse) > 0 {
		metadata["gateway_response"] = req.GatewayResponse
	}
	s.emitAudit(ctx, req.Actor, "payment.recorded", result.Payment.ID, metadata)

	s.publish(ctx, events.PaymentRecorded, map[string]any{
		"payment_id":  result.Payment.ID.String(),
		"payment_uid": result.Payment.PaymentUID.String(),
		"invoice_id":  invoiceID.String(),
		"amount":      amount.StringFixed(2),
		"method":      string(method),
		"overpaid":    result.Overpaid,
	})
	if becamePaid {
		s.publish(ctx, events.InvoicePaid, map[string]any{
			"invoice_id":     invoiceID.String(),
			"invoice_number": invoice.InvoiceNumber,
			"total_amount":   invoice.TotalAmount.StringFixed(2),
			"amount_paid":    result.AmountPaid.StringFixed(2),
		})
	}
	return result, nil
}

// RefundPayment moves a completed payment to refunded. The invoice status is
// left as it is; a paid invoice stays paid.
func (s *Service) RefundPayment(ctx context.Context, paymentID string, actor string) (paymentdomain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil || id == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}

	var refunded paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment paymentdomain.Payment
		if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).Limit(1).Find(&payment).Error; err != nil {
			return err
		}
		if payment.ID == 0 {
			return paymentdomain.ErrPaymentNotFound
		}
		if payment.Status != paymentdomain.StatusCompleted {
			return paymentdomain.ErrPaymentNotRefundable
		}

		now := s.clock.Now().UTC()
		res := tx.WithContext(ctx).Exec(
			`UPDATE payments
			 SET status = ?, refunded_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			paymentdomain.StatusRefunded,
			now,
			now,
			id,
			paymentdomain.StatusCompleted,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return paymentdomain.ErrPaymentNotRefundable
		}
		payment.Status = paymentdomain.StatusRefunded
		payment.RefundedAt = &now
		payment.UpdatedAt = now
		refunded = payment
		return nil
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.obsMetrics.RecordPayment(ctx, string(refunded.Method), string(paymentdomain.StatusRefunded))
	s.emitAudit(ctx, actor, "payment.refunded", refunded.ID, map[string]any{
		"invoice_id": refunded.InvoiceID.String(),
		"amount":     refunded.Amount.StringFixed(2),
	})
	s.publish(ctx, events.PaymentRefunded, map[string]any{
		"payment_id": refunded.ID.String(),
		"invoice_id": refunded.InvoiceID.String(),
		"amount":     refunded.Amount.StringFixed(2),
	})
	return refunded, nil
}

func (s *Service) GetByID(ctx context.Context, paymentID string) (paymentdomain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil || id == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *payment, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]paymentdomain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, paymentdomain.ErrInvalidInvoiceID
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

// RenderReceipt renders a PDF receipt for one payment.
func (s *Service) RenderReceipt(ctx context.Context, paymentID string) ([]byte, string, error) {
	payment, err := s.GetByID(ctx, paymentID)
	if err != nil {
		return nil, "", err
	}

	var invoice invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Where("id = ?", payment.InvoiceID).Limit(1).Find(&invoice).Error; err != nil {
		return nil, "", err
	}
	if invoice.ID == 0 {
		return nil, "", paymentdomain.ErrInvoiceNotFound
	}

	var code string
	if err := s.db.WithContext(ctx).Raw(`SELECT code FROM currencies WHERE id = ?`, invoice.CurrencyID).Scan(&code).Error; err != nil {
		return nil, "", err
	}
	paid, err := s.repo.CompletedTotal(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, "", err
	}
	balance := invoice.TotalAmount.Sub(paid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	clientName := ""
	if caseDetails, err := s.directory.GetCase(ctx, invoice.CaseID); err == nil {
		clientName = caseDetails.Client.Name
	}

	doc, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		FirmName:      s.firmName,
		InvoiceNumber: invoice.InvoiceNumber,
		ClientName:    clientName,
		PaymentUID:    payment.PaymentUID.String(),
		DatePaid:      payment.PaymentDate.Format(time.DateOnly),
		Method:        string(payment.Method),
		AmountPaid:    render.FormatMoney(payment.Amount, code),
		InvoiceTotal:  render.FormatMoney(invoice.TotalAmount, code),
		BalanceDue:    render.FormatMoney(balance, code),
	})
	if err != nil {
		return nil, "", err
	}
	return doc, fmt.Sprintf("Receipt_%s.pdf", invoice.InvoiceNumber), nil
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).Limit(1).Find(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) emitAudit(ctx context.Context, actor string, action string, paymentID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorType, actorID := "", (*string)(nil)
	if parsed, err := authorization.ParseActor(actor); err == nil {
		actorType, actorID = parsed.Type, parsed.AuditID()
	}
	targetID := paymentID.String()
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, action, "payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic string, payload map[string]any) {
	if err := events.PublishJSON(ctx, s.events, topic, payload); err != nil {
		s.log.Warn("failed to publish payment event", zap.String("topic", topic), zap.Error(err))
	}
}

func processedBy(actor string) *snowflake.ID {
	parsed, err := authorization.ParseActor(actor)
	if err != nil {
		return nil
	}
	return parsed.UserID()
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
