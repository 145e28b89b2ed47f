package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectInvoice   = "invoice"
	ObjectPayment   = "payment"
	ObjectRecurring = "recurring_invoice"
	ObjectCurrency  = "currency"
	ObjectRate      = "billing_rate"
	ObjectExpense   = "expense"
	ObjectSummary   = "billing_summary"
	ObjectAudit     = "audit_log"
)

const (
	ActionInvoiceGenerate  = "invoice.generate"
	ActionInvoiceView      = "invoice.view"
	ActionInvoiceSend      = "invoice.send"
	ActionInvoiceCancel    = "invoice.cancel"
	ActionInvoiceRecompute = "invoice.recompute"
	ActionInvoiceUpdate    = "invoice.update"

	ActionPaymentRecord = "payment.record"
	ActionPaymentRefund = "payment.refund"
	ActionPaymentView   = "payment.view"

	ActionRecurringCreate = "recurring_invoice.create"
	ActionRecurringUpdate = "recurring_invoice.update"
	ActionRecurringRun    = "recurring_invoice.run"
	ActionRecurringView   = "recurring_invoice.view"

	ActionCurrencyManage = "currency.manage"
	ActionRateManage     = "billing_rate.manage"

	ActionExpenseCreate = "expense.create"
	ActionExpenseView   = "expense.view"

	ActionExpenseCategoryManage = "expense_category.manage"

	ActionSummaryView = "billing_summary.view"

	ActionAuditView = "audit_log.view"
)

const (
	RoleAdmin      = "admin"
	RoleLawyer     = "lawyer"
	RoleAccountant = "accountant"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	parsed, err := ParseActor(actor)
	if err != nil {
		return err
	}

	subject, roleName, err := s.resolveRole(ctx, parsed)
	if err != nil {
		s.auditDenied(ctx, parsed, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, parsed, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveRole(ctx context.Context, actor Actor) (string, string, error) {
	if actor.Type == SystemActor {
		return SystemActor, "role:system", nil
	}

	role, err := s.roleForWorker(ctx, actor.ID)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("user:%s", actor.ID), fmt.Sprintf("role:%s", strings.ToLower(role)), nil
}

func (s *ServiceImpl) roleForWorker(ctx context.Context, workerID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM workers
		 WHERE id = ? AND is_active = ?
		 LIMIT 1`,
		workerID,
		true,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject so role changes in
// the workers table take effect on the next check.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType := actor.Type
	if actorType == "" {
		actorType = "unknown"
	}
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, actorType, actor.AuditID(), "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Lawyers see their billing and log expenses.
		{"role:lawyer", ObjectInvoice, ActionInvoiceView},
		{"role:lawyer", ObjectExpense, ActionExpenseCreate},
		{"role:lawyer", ObjectExpense, ActionExpenseView},
		{"role:lawyer", ObjectSummary, ActionSummaryView},

		// Accountants run billing.
		{"role:accountant", ObjectInvoice, ActionInvoiceGenerate},
		{"role:accountant", ObjectInvoice, ActionInvoiceView},
		{"role:accountant", ObjectInvoice, ActionInvoiceSend},
		{"role:accountant", ObjectInvoice, ActionInvoiceRecompute},
		{"role:accountant", ObjectInvoice, ActionInvoiceUpdate},
		{"role:accountant", ObjectPayment, ActionPaymentRecord},
		{"role:accountant", ObjectPayment, ActionPaymentView},
		{"role:accountant", ObjectExpense, ActionExpenseCreate},
		{"role:accountant", ObjectExpense, ActionExpenseView},
		{"role:accountant", ObjectSummary, ActionSummaryView},
		{"role:accountant", ObjectRecurring, ActionRecurringCreate},
		{"role:accountant", ObjectRecurring, ActionRecurringUpdate},
		{"role:accountant", ObjectRecurring, ActionRecurringView},

		// Admins additionally own financial configuration and reversals.
		{"role:admin", ObjectInvoice, ActionInvoiceGenerate},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceSend},
		{"role:admin", ObjectInvoice, ActionInvoiceCancel},
		{"role:admin", ObjectInvoice, ActionInvoiceRecompute},
		{"role:admin", ObjectInvoice, ActionInvoiceUpdate},
		{"role:admin", ObjectPayment, ActionPaymentRecord},
		{"role:admin", ObjectPayment, ActionPaymentRefund},
		{"role:admin", ObjectPayment, ActionPaymentView},
		{"role:admin", ObjectExpense, ActionExpenseCreate},
		{"role:admin", ObjectExpense, ActionExpenseView},
		{"role:admin", ObjectSummary, ActionSummaryView},
		{"role:admin", ObjectRecurring, ActionRecurringCreate},
		{"role:admin", ObjectRecurring, ActionRecurringUpdate},
		{"role:admin", ObjectRecurring, ActionRecurringRun},
		{"role:admin", ObjectRecurring, ActionRecurringView},
		{"role:admin", ObjectExpense, ActionExpenseCategoryManage},
		{"role:admin", ObjectCurrency, ActionCurrencyManage},
		{"role:admin", ObjectRate, ActionRateManage},
		{"role:admin", ObjectAudit, ActionAuditView},

		// The scheduler generates and sends recurring invoices.
		{"role:system", ObjectRecurring, ActionRecurringRun},
		{"role:system", ObjectInvoice, ActionInvoiceGenerate},
		{"role:system", ObjectInvoice, ActionInvoiceSend},
		{"role:system", ObjectInvoice, ActionInvoiceView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
