package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/authorization"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/casebill/internal/observability/metrics"
	"github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Directory  casedomain.Directory
	InvoiceSvc invoicedomain.Service

	Events     events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	directory  casedomain.Directory
	invoiceSvc invoicedomain.Service
	events     events.Publisher
	obsMetrics *obsmetrics.Metrics
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recurring.service"),
		genID:      p.GenID,
		clock:      c,
		directory:  p.Directory,
		invoiceSvc: p.InvoiceSvc,
		events:     p.Events,
		obsMetrics: p.ObsMetrics,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.RecurringInvoice, error) {
	caseID, err := snowflake.ParseString(strings.TrimSpace(req.CaseID))
	if err != nil || caseID == 0 {
		return domain.RecurringInvoice{}, domain.ErrInvalidCase
	}
	if _, err := s.directory.GetCase(ctx, caseID); err != nil {
		if errors.Is(err, casedomain.ErrCaseNotFound) || errors.Is(err, casedomain.ErrClientNotFound) {
			return domain.RecurringInvoice{}, domain.ErrInvalidCase
		}
		return domain.RecurringInvoice{}, err
	}

	frequency := domain.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency)))
	if !frequency.Valid() {
		return domain.RecurringInvoice{}, domain.ErrInvalidFrequency
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return domain.RecurringInvoice{}, domain.ErrInvalidStartDate
	}
	var endDate *time.Time
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		parsed, err := parseDate(*req.EndDate)
		if err != nil || parsed.Before(startDate) {
			return domain.RecurringInvoice{}, domain.ErrInvalidEndDate
		}
		endDate = &parsed
	}

	discount := decimal.Zero
	if raw := strings.TrimSpace(req.DiscountPercent); raw != "" {
		discount, err = parsePercent(raw)
		if err != nil {
			return domain.RecurringInvoice{}, domain.ErrInvalidDiscount
		}
	}
	var taxRate *decimal.Decimal
	if req.TaxRate != nil && strings.TrimSpace(*req.TaxRate) != "" {
		parsed, err := parsePercent(*req.TaxRate)
		if err != nil {
			return domain.RecurringInvoice{}, domain.ErrInvalidTaxRate
		}
		taxRate = &parsed
	}

	var templateID *snowflake.ID
	if req.TemplateInvoiceID != nil && strings.TrimSpace(*req.TemplateInvoiceID) != "" {
		template, err := s.invoiceSvc.GetByID(ctx, *req.TemplateInvoiceID)
		if err != nil {
			if errors.Is(err, invoicedomain.ErrInvoiceNotFound) || errors.Is(err, invoicedomain.ErrInvalidInvoiceID) {
				return domain.RecurringInvoice{}, domain.ErrTemplateNotFound
			}
			return domain.RecurringInvoice{}, err
		}
		if template.CaseID != caseID {
			return domain.RecurringInvoice{}, domain.ErrTemplateCaseMismatch
		}
		id := template.ID
		templateID = &id
		// Pricing not given explicitly is copied from the template.
		if strings.TrimSpace(req.DiscountPercent) == "" {
			discount = template.DiscountPercent
		}
		if taxRate == nil {
			rate := template.TaxRate
			taxRate = &rate
		}
	}

	includeExpenses := true
	if req.IncludeExpenses != nil {
		includeExpenses = *req.IncludeExpenses
	}

	now := s.clock.Now().UTC()
	item := domain.RecurringInvoice{
		ID:                s.genID.Generate(),
		CaseID:            caseID,
		TemplateInvoiceID: templateID,
		Frequency:         frequency,
		StartDate:         startDate,
		EndDate:           endDate,
		NextInvoiceDate:   startDate,
		DiscountPercent:   discount,
		TaxRate:           taxRate,
		IncludeExpenses:   includeExpenses,
		IsActive:          true,
		CreatedBy:         userID(req.Actor),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return domain.RecurringInvoice{}, err
	}

	s.emitAudit(ctx, req.Actor, "recurring_invoice.created", &item, map[string]any{
		"frequency":  string(frequency),
		"start_date": startDate.Format(time.DateOnly),
	})
	return item, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool, actor string) (domain.RecurringInvoice, error) {
	templateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || templateID == 0 {
		return domain.RecurringInvoice{}, domain.ErrInvalidID
	}

	var item domain.RecurringInvoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", templateID).Limit(1).Find(&item).Error; err != nil {
			return err
		}
		if item.ID == 0 {
			return domain.ErrRecurringNotFound
		}
		if item.IsActive == active {
			return nil
		}
		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE recurring_invoices SET is_active = ?, updated_at = ? WHERE id = ?`,
			active,
			now,
			templateID,
		).Error; err != nil {
			return err
		}
		item.IsActive = active
		item.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.RecurringInvoice{}, err
	}

	action := "recurring_invoice.deactivated"
	if active {
		action = "recurring_invoice.activated"
	}
	s.emitAudit(ctx, actor, action, &item, nil)
	return item, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.RecurringInvoice, error) {
	query := s.db.WithContext(ctx).Model(&domain.RecurringInvoice{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var items []domain.RecurringInvoice
	if err := query.Order("next_invoice_date ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) emitAudit(ctx context.Context, actor string, action string, item *domain.RecurringInvoice, extra map[string]any) {
	if s.auditSvc == nil || item == nil {
		return
	}
	metadata := map[string]any{
		"case_id":           item.CaseID.String(),
		"frequency":         string(item.Frequency),
		"next_invoice_date": item.NextInvoiceDate.Format(time.DateOnly),
		"is_active":         item.IsActive,
	}
	for key, value := range extra {
		metadata[key] = value
	}
	actorType, actorID := "", (*string)(nil)
	if parsed, err := authorization.ParseActor(actor); err == nil {
		actorType, actorID = parsed.Type, parsed.AuditID()
	}
	targetID := item.ID.String()
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, action, "recurring_invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func userID(actor string) *snowflake.ID {
	parsed, err := authorization.ParseActor(actor)
	if err != nil {
		return nil
	}
	return parsed.UserID()
}

func parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return clock.StartOfDay(parsed), nil
}

func parsePercent(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() || value.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("percent out of range: %s", value)
	}
	return value.Round(2), nil
}
