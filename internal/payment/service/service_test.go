package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/casebill/internal/billingtest"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	caseservice "github.com/smallbiznis/casebill/internal/caseregistry/service"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/casebill/internal/payment/repository"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
	"github.com/smallbiznis/casebill/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	env    *billingtest.Env
	svc    paymentdomain.Service
	eur    currencydomain.Currency
	matter casedomain.Case
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := billingtest.NewEnv(t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	svc := NewService(Params{
		DB:        env.DB,
		Log:       log,
		GenID:     env.Node,
		Clock:     env.Clock,
		AppConfig: config.Config{FirmName: "Test Legal"},
		Repo:      paymentrepo.Provide(),
		Directory: caseservice.NewDirectory(caseservice.Params{
			Log:     log,
			Cases:   repository.ProvideStore[casedomain.Case](env.DB),
			Clients: repository.ProvideStore[casedomain.Client](env.DB),
			Workers: repository.ProvideStore[casedomain.Worker](env.DB),
		}),
		PDF:    &pdf.NoOpProvider{},
		Events: events.NewOutboxPublisher(env.DB, env.Node, env.Clock),
	})

	client := env.SeedClient(t, "Acme GmbH", "billing@acme.test")
	return &fixture{
		env:    env,
		svc:    svc,
		eur:    env.SeedCurrency(t, "EUR", "1", true),
		matter: env.SeedCase(t, client, "Acme v. Globex", "litigation", nil),
	}
}

func (f *fixture) seedInvoice(t *testing.T, number, total string, status invoicedomain.InvoiceStatus) invoicedomain.Invoice {
	t.Helper()
	now := f.env.Clock.Now()
	amount := decimal.RequireFromString(total)
	inv := invoicedomain.Invoice{
		ID:               f.env.Node.Generate(),
		InvoiceNumber:    number,
		CaseID:           f.matter.ID,
		ClientID:         f.matter.ClientID,
		CurrencyID:       f.eur.ID,
		Status:           status,
		IssueDate:        billingtest.Day(2024, 3, 1),
		DueDate:          billingtest.Day(2024, 3, 31),
		PeriodStart:      billingtest.Day(2024, 2, 1),
		PeriodEnd:        billingtest.Day(2024, 3, 1),
		DiscountPercent:  decimal.Zero,
		SubtotalTime:     amount,
		SubtotalExpenses: decimal.Zero,
		DiscountAmount:   decimal.Zero,
		TaxRate:          decimal.Zero,
		TaxAmount:        decimal.Zero,
		TotalAmount:      amount,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, f.env.DB.Create(&inv).Error)
	return inv
}

func (f *fixture) status(t *testing.T, id string) invoicedomain.InvoiceStatus {
	t.Helper()
	var inv invoicedomain.Invoice
	require.NoError(t, f.env.DB.Where("id = ?", id).First(&inv).Error)
	return inv.Status
}

func TestRecordPaymentExactAmountMarksPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0001", "169.00", invoicedomain.InvoiceStatusSent)

	res, err := f.svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "169",
		Method:    "Bank_Transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), res.InvoiceStatus)
	assert.True(t, res.BalanceDue.IsZero())
	assert.False(t, res.Overpaid)
	assert.Equal(t, paymentdomain.MethodBankTransfer, res.Payment.Method)
	assert.Equal(t, paymentdomain.StatusCompleted, res.Payment.Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.status(t, inv.ID.String()))

	var topics []string
	require.NoError(t, f.env.DB.Model(&events.BillingEvent{}).Order("id").Pluck("event_type", &topics).Error)
	assert.Equal(t, []string{events.PaymentRecorded, events.InvoicePaid}, topics)
}

func TestRecordPaymentPartialLeavesStatus(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0001", "169.00", invoicedomain.InvoiceStatusSent)
	ctx := context.Background()

	res, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "100",
		Method:    "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.InvoiceStatusSent), res.InvoiceStatus)
	assert.True(t, res.BalanceDue.Equal(decimal.RequireFromString("69")))

	res, err = f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "69",
		Method:    "cash",
	})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), res.InvoiceStatus)
	assert.True(t, res.AmountPaid.Equal(decimal.RequireFromString("169")))

	payments, err := f.svc.ListPayments(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPaymentOverpaidStillPaid(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0001", "50.00", invoicedomain.InvoiceStatusDraft)

	res, err := f.svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "60",
		Method:    "check",
	})
	require.NoError(t, err)
	assert.True(t, res.Overpaid)
	assert.True(t, res.BalanceDue.IsZero())
	assert.Equal(t, string(invoicedomain.InvoiceStatusPaid), res.InvoiceStatus)
}

func TestRecordPaymentRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0001", "50.00", invoicedomain.InvoiceStatusSent)
	cancelled := f.seedInvoice(t, "INV-2024-0002", "50.00", invoicedomain.InvoiceStatusCancelled)
	ctx := context.Background()

	cases := []struct {
		name string
		req  paymentdomain.RecordPaymentRequest
		want error
	}{
		{"zero amount", paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: "0", Method: "cash"}, paymentdomain.ErrNonPositiveAmount},
		{"sub-cent amount", paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: "0.004", Method: "cash"}, paymentdomain.ErrNonPositiveAmount},
		{"negative amount", paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: "-5", Method: "cash"}, paymentdomain.ErrNonPositiveAmount},
		{"garbage amount", paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: "ten", Method: "cash"}, paymentdomain.ErrInvalidAmount},
		{"unknown method", paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID.String(), Amount: "5", Method: "barter"}, paymentdomain.ErrInvalidMethod},
		{"bad invoice id", paymentdomain.RecordPaymentRequest{InvoiceID: "x", Amount: "5", Method: "cash"}, paymentdomain.ErrInvalidInvoiceID},
		{"missing invoice", paymentdomain.RecordPaymentRequest{InvoiceID: f.env.Node.Generate().String(), Amount: "5", Method: "cash"}, paymentdomain.ErrInvoiceNotFound},
		{"cancelled invoice", paymentdomain.RecordPaymentRequest{InvoiceID: cancelled.ID.String(), Amount: "5", Method: "cash"}, paymentdomain.ErrInvoiceCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.env.DB.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRefundPaymentKeepsInvoicePaid(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0001", "50.00", invoicedomain.InvoiceStatusSent)
	ctx := context.Background()

	res, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "50",
		Method:    "stripe",
	})
	require.NoError(t, err)

	refunded, err := f.svc.RefundPayment(ctx, res.Payment.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.status(t, inv.ID.String()))

	_, err = f.svc.RefundPayment(ctx, res.Payment.ID.String(), "")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotRefundable)
	_, err = f.svc.RefundPayment(ctx, f.env.Node.Generate().String(), "")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestRenderReceiptNamesFile(t *testing.T) {
	f := newFixture(t)
	inv := f.seedInvoice(t, "INV-2024-0007", "50.00", invoicedomain.InvoiceStatusSent)
	ctx := context.Background()

	res, err := f.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    "20",
		Method:    "cash",
	})
	require.NoError(t, err)

	_, name, err := f.svc.RenderReceipt(ctx, res.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Receipt_INV-2024-0007.pdf", name)

	_, _, err = f.svc.RenderReceipt(ctx, "0")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPaymentID)
}
