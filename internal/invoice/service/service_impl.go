package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/authorization"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/events"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/observability/metrics"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/casebill/internal/timeentry/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"github.com/smallbiznis/casebill/pkg/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	AppConfig config.Config
	Billing   *config.BillingConfigHolder
	Locker    lock.Locker

	Directory   casedomain.Directory
	CurrencySvc currencydomain.Service
	Rates       ratedomain.Resolver
	TimeEntries timeentrydomain.Source
	Expenses    expensedomain.Source
	Dispatcher  invoicedomain.Dispatcher
	PDF         pdf.Provider

	Events   events.Publisher    `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	firmName string
	billing  *config.BillingConfigHolder
	locker   lock.Locker

	directory   casedomain.Directory
	currencySvc currencydomain.Service
	rates       ratedomain.Resolver
	timeEntries timeentrydomain.Source
	expenses    expensedomain.Source
	dispatcher  invoicedomain.Dispatcher
	pdf         pdf.Provider

	events   events.Publisher
	metrics  *metrics.Metrics
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	return newService(p)
}

func newService(p ServiceParam) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: c,

		firmName: p.AppConfig.FirmName,
		billing:  p.Billing,
		locker:   p.Locker,

		directory:   p.Directory,
		currencySvc: p.CurrencySvc,
		rates:       p.Rates,
		timeEntries: p.TimeEntries,
		expenses:    p.Expenses,
		dispatcher:  p.Dispatcher,
		pdf:         p.PDF,

		events:   p.Events,
		metrics:  p.Metrics,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

type paymentAmountRow struct {
	Amount decimal.Decimal
}

func (s *Service) completedPaymentTotal(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	var rows []paymentAmountRow
	err := tx.WithContext(ctx).Raw(
		`SELECT amount FROM payments WHERE invoice_id = ? AND status = ?`,
		invoiceID,
		"completed",
	).Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return total, nil
}

// loadDetails reads an invoice with its lines, currency and payment position.
func (s *Service) loadDetails(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) (invoicedomain.InvoiceDetails, error) {
	details := invoicedomain.InvoiceDetails{
		Invoice:         invoice,
		EffectiveStatus: invoice.EffectiveStatus(clock.Today(s.clock)),
	}

	if err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Order("id ASC").
		Find(&details.TimeEntries).Error; err != nil {
		return details, err
	}
	if err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Order("id ASC").
		Find(&details.Expenses).Error; err != nil {
		return details, err
	}

	var code string
	if err := tx.WithContext(ctx).Raw(
		`SELECT code FROM currencies WHERE id = ?`,
		invoice.CurrencyID,
	).Scan(&code).Error; err != nil {
		return details, err
	}
	details.CurrencyCode = code

	paid, err := s.completedPaymentTotal(ctx, tx, invoice.ID)
	if err != nil {
		return details, err
	}
	details.AmountPaid = paid
	details.BalanceDue = invoice.TotalAmount.Sub(paid)
	if details.BalanceDue.IsNegative() {
		details.BalanceDue = decimal.Zero
	}
	return details, nil
}

func (s *Service) emitAudit(ctx context.Context, actor string, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"case_id":        invoice.CaseID.String(),
		"status":         string(invoice.Status),
		"total_amount":   invoice.TotalAmount.StringFixed(2),
		"period_start":   invoice.PeriodStart.Format(time.DateOnly),
		"period_end":     invoice.PeriodEnd.Format(time.DateOnly),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	actorType, actorID := auditActor(actor)
	targetID := invoice.ID.String()
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, topic string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.events == nil || invoice == nil {
		return
	}
	payload := map[string]any{
		"invoice_id":     invoice.ID.String(),
		"invoice_number": invoice.InvoiceNumber,
		"case_id":        invoice.CaseID.String(),
		"client_id":      invoice.ClientID.String(),
		"status":         string(invoice.Status),
		"total_amount":   invoice.TotalAmount.StringFixed(2),
	}
	for key, value := range extra {
		payload[key] = value
	}
	if err := events.PublishJSON(ctx, s.events, topic, payload); err != nil {
		s.log.Warn("failed to publish invoice event", zap.String("topic", topic), zap.Error(err))
	}
}

func auditActor(actor string) (string, *string) {
	parsed, err := authorization.ParseActor(actor)
	if err != nil {
		return "", nil
	}
	return parsed.Type, parsed.AuditID()
}

func createdBy(actor string) *snowflake.ID {
	parsed, err := authorization.ParseActor(actor)
	if err != nil {
		return nil
	}
	return parsed.UserID()
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}
