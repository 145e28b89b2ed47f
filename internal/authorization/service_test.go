package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/casebill/internal/billingtest"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuthorizer(t *testing.T) (Service, *billingtest.Env) {
	t.Helper()
	env := billingtest.NewEnv(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	enforcer, err := NewEnforcer(env.DB)
	require.NoError(t, err)
	return NewService(Params{DB: env.DB, Log: zap.NewNop(), Enforcer: enforcer}), env
}

func seedRole(t *testing.T, env *billingtest.Env, name, role string) string {
	t.Helper()
	worker := env.SeedWorker(t, name, name+"@firm.test")
	require.NoError(t, env.DB.Model(&casedomain.Worker{}).Where("id = ?", worker.ID).Update("role", role).Error)
	return "user:" + worker.ID.String()
}

func TestAuthorizeByRole(t *testing.T) {
	svc, env := newTestAuthorizer(t)
	ctx := context.Background()
	admin := seedRole(t, env, "admin", RoleAdmin)
	lawyer := seedRole(t, env, "lawyer", RoleLawyer)
	accountant := seedRole(t, env, "accountant", RoleAccountant)

	cases := []struct {
		name    string
		actor   string
		object  string
		action  string
		allowed bool
	}{
		{"admin cancels", admin, ObjectInvoice, ActionInvoiceCancel, true},
		{"admin manages currency", admin, ObjectCurrency, ActionCurrencyManage, true},
		{"accountant generates", accountant, ObjectInvoice, ActionInvoiceGenerate, true},
		{"accountant cannot cancel", accountant, ObjectInvoice, ActionInvoiceCancel, false},
		{"accountant cannot refund", accountant, ObjectPayment, ActionPaymentRefund, false},
		{"lawyer views", lawyer, ObjectInvoice, ActionInvoiceView, true},
		{"lawyer cannot generate", lawyer, ObjectInvoice, ActionInvoiceGenerate, false},
		{"system runs recurring", SystemActor, ObjectRecurring, ActionRecurringRun, true},
		{"system cannot record payments", SystemActor, ObjectPayment, ActionPaymentRecord, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestAuthorizeFollowsRoleChanges(t *testing.T) {
	svc, env := newTestAuthorizer(t)
	ctx := context.Background()
	actor := seedRole(t, env, "dana", RoleLawyer)

	require.ErrorIs(t, svc.Authorize(ctx, actor, ObjectInvoice, ActionInvoiceSend), ErrForbidden)

	require.NoError(t, env.DB.Model(&casedomain.Worker{}).Where("email = ?", "dana@firm.test").Update("role", RoleAccountant).Error)
	require.NoError(t, svc.Authorize(ctx, actor, ObjectInvoice, ActionInvoiceSend))

	require.NoError(t, env.DB.Model(&casedomain.Worker{}).Where("email = ?", "dana@firm.test").Update("is_active", false).Error)
	assert.ErrorIs(t, svc.Authorize(ctx, actor, ObjectInvoice, ActionInvoiceView), ErrForbidden)
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	svc, _ := newTestAuthorizer(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", ObjectInvoice, ActionInvoiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:abc", ObjectInvoice, ActionInvoiceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor, "", ActionInvoiceView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, SystemActor, ObjectInvoice, " "), ErrInvalidAction)
}

func TestParseActor(t *testing.T) {
	actor, err := ParseActor("user:42")
	require.NoError(t, err)
	assert.Equal(t, "user", actor.Type)
	require.NotNil(t, actor.UserID())
	assert.EqualValues(t, 42, *actor.UserID())
	require.NotNil(t, actor.AuditID())
	assert.Equal(t, "42", *actor.AuditID())

	system, err := ParseActor(" system ")
	require.NoError(t, err)
	assert.Nil(t, system.UserID())
	assert.Nil(t, system.AuditID())
}
