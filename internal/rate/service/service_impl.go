package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/rate/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CurrencySvc currencydomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	currencySvc currencydomain.Service
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("rate.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		currencySvc: p.CurrencySvc,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.BillingRate, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.BillingRate{}, domain.ErrInvalidName
	}
	rateType := domain.RateType(strings.ToLower(strings.TrimSpace(req.RateType)))
	if rateType == "" {
		rateType = domain.RateTypeHourly
	}
	if !rateType.Valid() {
		return domain.BillingRate{}, domain.ErrInvalidRateType
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return domain.BillingRate{}, err
	}

	currencyID, err := parseID(req.CurrencyID)
	if err != nil {
		return domain.BillingRate{}, domain.ErrInvalidCurrency
	}
	if _, err := s.currencySvc.GetByID(ctx, currencyID); err != nil {
		if errors.Is(err, currencydomain.ErrCurrencyNotFound) {
			return domain.BillingRate{}, domain.ErrInvalidCurrency
		}
		return domain.BillingRate{}, err
	}

	var workerID *snowflake.ID
	if raw := strings.TrimSpace(req.WorkerID); raw != "" {
		parsed, err := parseID(raw)
		if err != nil {
			return domain.BillingRate{}, domain.ErrInvalidWorker
		}
		workerID = &parsed
	}
	var category *string
	if raw := strings.TrimSpace(req.CaseCategory); raw != "" {
		category = &raw
	}

	now := s.clock.Now().UTC()
	item := domain.BillingRate{
		ID:           s.genID.Generate(),
		Name:         name,
		RateType:     rateType,
		Amount:       amount,
		CurrencyID:   currencyID,
		WorkerID:     workerID,
		CaseCategory: category,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return domain.BillingRate{}, err
	}

	s.emitAudit(ctx, "billing_rate.created", item, map[string]any{"scope": item.Scope()})
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.BillingRate, error) {
	var item domain.BillingRate
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.BillingRate{}, domain.ErrRateNotFound
	}
	if err != nil {
		return domain.BillingRate{}, err
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.BillingRate, error) {
	stmt := s.db.WithContext(ctx).Model(&domain.BillingRate{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	var items []domain.BillingRate
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateAmount changes the price of a rate that has never been billed. Once an
// invoice line references the rate it is frozen; create a new rate instead.
func (s *Service) UpdateAmount(ctx context.Context, id snowflake.ID, raw string) (domain.BillingRate, error) {
	amount, err := parseAmount(raw)
	if err != nil {
		return domain.BillingRate{}, err
	}

	var (
		updated  domain.BillingRate
		previous decimal.Decimal
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item domain.BillingRate
		if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrRateNotFound
			}
			return err
		}

		var refs int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM invoice_time_entries WHERE billing_rate_id = ?`,
			id,
		).Scan(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrRateImmutable
		}

		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE billing_rates SET amount = ?, updated_at = ? WHERE id = ?`,
			amount, now, id,
		).Error; err != nil {
			return err
		}
		previous = item.Amount
		item.Amount = amount
		item.UpdatedAt = now
		updated = item
		return nil
	})
	if err != nil {
		return domain.BillingRate{}, err
	}

	s.emitAudit(ctx, "billing_rate.amount_updated", updated, map[string]any{
		"previous_amount": previous.StringFixed(2),
	})
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (domain.BillingRate, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.BillingRate{}, err
	}
	if !item.IsActive {
		return item, nil
	}

	now := s.clock.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE billing_rates SET is_active = ?, updated_at = ? WHERE id = ?`,
		false, now, id,
	).Error; err != nil {
		return domain.BillingRate{}, err
	}
	item.IsActive = false
	item.UpdatedAt = now

	s.emitAudit(ctx, "billing_rate.deactivated", item, nil)
	return item, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, item domain.BillingRate, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"rate_type": string(item.RateType),
		"amount":    item.Amount.StringFixed(2),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	targetID := item.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "billing_rate", &targetID, metadata); err != nil {
		s.log.Warn("failed to write rate audit", zap.String("action", action), zap.Error(err))
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || amount.IsNegative() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return amount.Round(2), nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
