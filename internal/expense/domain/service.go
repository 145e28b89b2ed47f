package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Source is what the invoice builder needs from the expense store.
type Source interface {
	ListUnbilled(ctx context.Context, db *gorm.DB, caseID snowflake.ID, periodStart, periodEnd time.Time) ([]Expense, error)
	// MarkBilled flips is_billed from false to true. It reports false when the
	// expense was already billed by someone else.
	MarkBilled(ctx context.Context, db *gorm.DB, expenseID snowflake.ID) (bool, error)
}

type CreateExpenseRequest struct {
	CaseID           string  `json:"case_id"`
	CategoryID       string  `json:"category_id"`
	WorkerID         string  `json:"worker_id"`
	Description      string  `json:"description"`
	Amount           string  `json:"amount"`
	CurrencyID       string  `json:"currency_id,omitempty"`
	MarkupPercentage *string `json:"markup_percentage,omitempty"`
	IsBillable       *bool   `json:"is_billable,omitempty"`
	ExpenseDate      string  `json:"expense_date,omitempty"`
}

type CreateCategoryRequest struct {
	Name                    string `json:"name"`
	Description             string `json:"description"`
	IsBillable              bool   `json:"is_billable"`
	DefaultMarkupPercentage string `json:"default_markup_percentage"`
}

type Service interface {
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (ExpenseCategory, error)
	ListCategories(ctx context.Context) ([]ExpenseCategory, error)
	CreateExpense(ctx context.Context, req CreateExpenseRequest) (Expense, error)
	GetByID(ctx context.Context, id snowflake.ID) (Expense, error)
	GetSummary(ctx context.Context, caseID snowflake.ID, year int) (Summary, error)
}

var (
	ErrExpenseNotFound  = errors.New("expense_not_found")
	ErrCategoryNotFound = errors.New("expense_category_not_found")
	ErrCategoryInactive = errors.New("expense_category_inactive")
	ErrInvalidCase      = errors.New("invalid_case")
	ErrInvalidWorker    = errors.New("invalid_worker")
	ErrInvalidAmount    = errors.New("invalid_expense_amount")
	ErrInvalidMarkup    = errors.New("invalid_markup_percentage")
	ErrInvalidDate      = errors.New("invalid_expense_date")
	ErrInvalidName      = errors.New("invalid_category_name")
	ErrInvalidCurrency  = errors.New("invalid_expense_currency")
	ErrDescriptionEmpty = errors.New("expense_description_required")
	ErrDuplicateName    = errors.New("expense_category_exists")
	ErrInvalidYear      = errors.New("invalid_year")
)
