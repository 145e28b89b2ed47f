package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/expense/domain"
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
	Directory   casedomain.Directory
	CurrencySvc currencydomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	directory   casedomain.Directory
	currencySvc currencydomain.Service
	auditSvc    auditdomain.Service
}

var hundred = decimal.NewFromInt(100)

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("expense.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		directory:   p.Directory,
		currencySvc: p.CurrencySvc,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (domain.ExpenseCategory, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ExpenseCategory{}, domain.ErrInvalidName
	}
	markup, err := parseMarkup(req.DefaultMarkupPercentage)
	if err != nil {
		return domain.ExpenseCategory{}, err
	}

	item := domain.ExpenseCategory{
		ID:                      s.genID.Generate(),
		Name:                    name,
		Description:             strings.TrimSpace(req.Description),
		IsBillable:              req.IsBillable,
		DefaultMarkupPercentage: markup,
		IsActive:                true,
		CreatedAt:               s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ExpenseCategory{}, domain.ErrDuplicateName
		}
		return domain.ExpenseCategory{}, err
	}
	return item, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	var items []domain.ExpenseCategory
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// CreateExpense records a cost and freezes its billable amount. Markup and
// billability default to the category's settings when the request omits them.
func (s *Service) CreateExpense(ctx context.Context, req domain.CreateExpenseRequest) (domain.Expense, error) {
	caseID, err := parseID(req.CaseID)
	if err != nil {
		return domain.Expense{}, domain.ErrInvalidCase
	}
	if _, err := s.directory.GetCase(ctx, caseID); err != nil {
		if errors.Is(err, casedomain.ErrCaseNotFound) {
			return domain.Expense{}, domain.ErrInvalidCase
		}
		return domain.Expense{}, err
	}

	workerID, err := parseID(req.WorkerID)
	if err != nil {
		return domain.Expense{}, domain.ErrInvalidWorker
	}
	if _, err := s.directory.GetWorker(ctx, workerID); err != nil {
		if errors.Is(err, casedomain.ErrWorkerNotFound) {
			return domain.Expense{}, domain.ErrInvalidWorker
		}
		return domain.Expense{}, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Expense{}, domain.ErrDescriptionEmpty
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return domain.Expense{}, domain.ErrInvalidAmount
	}
	amount = amount.Round(2)

	category, err := s.loadCategory(ctx, req.CategoryID)
	if err != nil {
		return domain.Expense{}, err
	}

	markup := category.DefaultMarkupPercentage
	if req.MarkupPercentage != nil {
		markup, err = parseMarkup(*req.MarkupPercentage)
		if err != nil {
			return domain.Expense{}, err
		}
	}
	billable := category.IsBillable
	if req.IsBillable != nil {
		billable = *req.IsBillable
	}

	currencyID, err := s.resolveCurrency(ctx, req.CurrencyID)
	if err != nil {
		return domain.Expense{}, err
	}

	now := s.clock.Now().UTC()
	expenseDate := clock.StartOfDay(now)
	if raw := strings.TrimSpace(req.ExpenseDate); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return domain.Expense{}, domain.ErrInvalidDate
		}
		expenseDate = parsed.UTC()
	}

	item := domain.Expense{
		ID:               s.genID.Generate(),
		CaseID:           caseID,
		CategoryID:       category.ID,
		WorkerID:         workerID,
		Description:      description,
		Amount:           amount,
		CurrencyID:       currencyID,
		MarkupPercentage: markup,
		BillableAmount:   domain.BillableFor(amount, markup),
		IsBillable:       billable,
		IsBilled:         false,
		ExpenseDate:      expenseDate,
		CreatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return domain.Expense{}, err
	}

	if s.auditSvc != nil {
		targetID := item.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, "expense.created", "expense", &targetID, map[string]any{
			"case_id":         caseID.String(),
			"amount":          item.Amount.StringFixed(2),
			"billable_amount": item.BillableAmount.StringFixed(2),
			"is_billable":     item.IsBillable,
		})
	}
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Expense, error) {
	var item domain.Expense
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Expense{}, domain.ErrExpenseNotFound
	}
	if err != nil {
		return domain.Expense{}, err
	}
	return item, nil
}

// GetSummary totals a case's expenses dated within year, converted to the
// base currency.
func (s *Service) GetSummary(ctx context.Context, caseID snowflake.ID, year int) (domain.Summary, error) {
	if year < 1900 || year > 9999 {
		return domain.Summary{}, domain.ErrInvalidYear
	}
	base, err := s.currencySvc.GetBaseCurrency(ctx)
	if err != nil {
		return domain.Summary{}, err
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var items []domain.Expense
	if err := s.db.WithContext(ctx).
		Where("case_id = ? AND expense_date >= ? AND expense_date < ?", caseID, start, start.AddDate(1, 0, 0)).
		Find(&items).Error; err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		CaseID:           caseID.String(),
		Year:             year,
		Currency:         base.Code,
		TotalExpenses:    decimal.Zero,
		BillableExpenses: decimal.Zero,
		BilledExpenses:   decimal.Zero,
		UnbilledBillable: decimal.Zero,
		ExpenseCount:     len(items),
	}
	for _, item := range items {
		amount, err := s.currencySvc.Convert(ctx, item.Amount, item.CurrencyID, base.ID)
		if err != nil {
			return domain.Summary{}, err
		}
		summary.TotalExpenses = summary.TotalExpenses.Add(amount)
		if !item.IsBillable {
			continue
		}
		billable, err := s.currencySvc.Convert(ctx, item.EffectiveBillable(), item.CurrencyID, base.ID)
		if err != nil {
			return domain.Summary{}, err
		}
		summary.BillableExpenses = summary.BillableExpenses.Add(billable)
		if item.IsBilled {
			summary.BilledExpenses = summary.BilledExpenses.Add(billable)
		} else {
			summary.UnbilledBillable = summary.UnbilledBillable.Add(billable)
		}
	}

	summary.TotalExpenses = summary.TotalExpenses.Round(2)
	summary.BillableExpenses = summary.BillableExpenses.Round(2)
	summary.BilledExpenses = summary.BilledExpenses.Round(2)
	summary.UnbilledBillable = summary.UnbilledBillable.Round(2)
	return summary, nil
}

func (s *Service) loadCategory(ctx context.Context, raw string) (domain.ExpenseCategory, error) {
	id, err := parseID(raw)
	if err != nil {
		return domain.ExpenseCategory{}, domain.ErrCategoryNotFound
	}
	var category domain.ExpenseCategory
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ExpenseCategory{}, domain.ErrCategoryNotFound
	}
	if err != nil {
		return domain.ExpenseCategory{}, err
	}
	if !category.IsActive {
		return domain.ExpenseCategory{}, domain.ErrCategoryInactive
	}
	return category, nil
}

func (s *Service) resolveCurrency(ctx context.Context, raw string) (snowflake.ID, error) {
	if strings.TrimSpace(raw) == "" {
		base, err := s.currencySvc.GetBaseCurrency(ctx)
		if err != nil {
			return 0, err
		}
		return base.ID, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return 0, domain.ErrInvalidCurrency
	}
	item, err := s.currencySvc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, currencydomain.ErrCurrencyNotFound) {
			return 0, domain.ErrInvalidCurrency
		}
		return 0, err
	}
	if !item.IsActive {
		return 0, domain.ErrInvalidCurrency
	}
	return item.ID, nil
}

func parseMarkup(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	markup, err := decimal.NewFromString(raw)
	if err != nil || markup.IsNegative() || markup.GreaterThan(hundred) {
		return decimal.Zero, domain.ErrInvalidMarkup
	}
	return markup, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, errors.New("invalid_id")
	}
	return id, nil
}
