package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("currency.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

// GetBaseCurrency never provisions a fallback: a missing base is a
// configuration fault the operator has to fix.
func (s *Service) GetBaseCurrency(ctx context.Context) (domain.Currency, error) {
	var items []domain.Currency
	if err := s.db.WithContext(ctx).
		Where("is_base_currency = ?", true).
		Order("id ASC").
		Limit(2).
		Find(&items).Error; err != nil {
		return domain.Currency{}, err
	}
	switch len(items) {
	case 0:
		return domain.Currency{}, domain.ErrNotConfigured
	case 1:
		return items[0], nil
	default:
		s.log.Error("multiple base currencies configured")
		return domain.Currency{}, domain.ErrInvariantViolation
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Currency, error) {
	return s.loadByID(ctx, s.db, id)
}

func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, fromID, toID snowflake.ID) (decimal.Decimal, error) {
	if fromID == toID {
		return amount, nil
	}
	from, err := s.loadByID(ctx, s.db, fromID)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := s.loadByID(ctx, s.db, toID)
	if err != nil {
		return decimal.Zero, err
	}
	if !from.ExchangeRate.IsPositive() || !to.ExchangeRate.IsPositive() {
		return decimal.Zero, domain.ErrInvalidExchangeRate
	}
	return domain.ConvertAmount(amount, from, to), nil
}

func (s *Service) List(ctx context.Context) ([]domain.Currency, error) {
	var items []domain.Currency
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if len(code) != 3 {
		return domain.Currency{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Currency{}, domain.ErrInvalidName
	}

	rate := decimal.NewFromInt(1)
	if !req.IsBase {
		parsed, err := parseRate(req.ExchangeRate)
		if err != nil {
			return domain.Currency{}, err
		}
		rate = parsed
	}

	now := s.clock.Now().UTC()
	item := domain.Currency{
		ID:             s.genID.Generate(),
		Code:           code,
		Name:           name,
		Symbol:         strings.TrimSpace(req.Symbol),
		ExchangeRate:   rate,
		IsBaseCurrency: req.IsBase,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.IsBase {
			if err := s.ensureNoOtherBase(ctx, tx, 0); err != nil {
				return err
			}
		}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				if req.IsBase {
					return domain.ErrInvariantViolation
				}
				return domain.ErrDuplicateCode
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Currency{}, err
	}

	s.emitAudit(ctx, "currency.created", item, map[string]any{"is_base_currency": item.IsBaseCurrency})
	return item, nil
}

// SetBase designates id as the base currency. It fails if another currency
// already holds the flag.
func (s *Service) SetBase(ctx context.Context, id snowflake.ID) (domain.Currency, error) {
	var updated domain.Currency
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.IsBaseCurrency {
			updated = item
			return nil
		}
		if err := s.ensureNoOtherBase(ctx, tx, id); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE currencies
			 SET is_base_currency = ?, exchange_rate = ?, is_active = ?, updated_at = ?
			 WHERE id = ?`,
			true, decimal.NewFromInt(1), true, now, id,
		).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrInvariantViolation
			}
			return err
		}
		item.IsBaseCurrency = true
		item.IsActive = true
		item.ExchangeRate = decimal.NewFromInt(1)
		item.UpdatedAt = now
		updated = item
		return nil
	})
	if err != nil {
		return domain.Currency{}, err
	}

	s.emitAudit(ctx, "currency.base_set", updated, nil)
	return updated, nil
}

func (s *Service) UpdateExchangeRate(ctx context.Context, id snowflake.ID, raw string) (domain.Currency, error) {
	rate, err := parseRate(raw)
	if err != nil {
		return domain.Currency{}, err
	}

	var (
		updated  domain.Currency
		previous decimal.Decimal
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.IsBaseCurrency {
			return domain.ErrBaseCurrencyReadOnly
		}
		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE currencies SET exchange_rate = ?, updated_at = ? WHERE id = ?`,
			rate, now, id,
		).Error; err != nil {
			return err
		}
		previous = item.ExchangeRate
		item.ExchangeRate = rate
		item.UpdatedAt = now
		updated = item
		return nil
	})
	if err != nil {
		return domain.Currency{}, err
	}

	s.emitAudit(ctx, "currency.rate_updated", updated, map[string]any{
		"previous_rate": previous.String(),
		"exchange_rate": rate.String(),
	})
	return updated, nil
}

// Deactivate hides a currency from new records. Currencies are never deleted.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (domain.Currency, error) {
	var updated domain.Currency
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.IsBaseCurrency {
			return domain.ErrBaseCurrencyReadOnly
		}
		now := s.clock.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE currencies SET is_active = ?, updated_at = ? WHERE id = ?`,
			false, now, id,
		).Error; err != nil {
			return err
		}
		item.IsActive = false
		item.UpdatedAt = now
		updated = item
		return nil
	})
	if err != nil {
		return domain.Currency{}, err
	}

	s.emitAudit(ctx, "currency.deactivated", updated, nil)
	return updated, nil
}

func (s *Service) ensureNoOtherBase(ctx context.Context, tx *gorm.DB, exceptID snowflake.ID) error {
	var existing []domain.Currency
	if err := db.ForUpdate(tx.WithContext(ctx)).
		Where("is_base_currency = ? AND id <> ?", true, exceptID).
		Find(&existing).Error; err != nil {
		return err
	}
	if len(existing) > 0 {
		return domain.ErrInvariantViolation
	}
	return nil
}

func (s *Service) loadByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Currency, error) {
	if id == 0 {
		return domain.Currency{}, domain.ErrCurrencyNotFound
	}
	var item domain.Currency
	err := tx.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Currency{}, domain.ErrCurrencyNotFound
	}
	if err != nil {
		return domain.Currency{}, err
	}
	return item, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Currency, error) {
	if id == 0 {
		return domain.Currency{}, domain.ErrCurrencyNotFound
	}
	var item domain.Currency
	err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Currency{}, domain.ErrCurrencyNotFound
	}
	if err != nil {
		return domain.Currency{}, err
	}
	return item, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, item domain.Currency, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"code":          item.Code,
		"exchange_rate": item.ExchangeRate.String(),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	targetID := item.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "currency", &targetID, metadata); err != nil {
		s.log.Warn("failed to write currency audit", zap.String("action", action), zap.Error(err))
	}
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, domain.ErrInvalidExchangeRate
	}
	return rate, nil
}
