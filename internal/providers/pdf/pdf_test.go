package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoiceProducesPDF(t *testing.T) {
	provider := New()
	out, err := provider.GenerateInvoice(context.Background(), InvoiceData{
		FirmName:      "Casebill Legal",
		InvoiceNumber: "INV-2024-0001",
		IssueDate:     "2024-01-31",
		DueDate:       "2024-03-01",
		ServicePeriod: "2024-01-01 - 2024-01-31",
		ClientName:    "Acme",
		CaseTitle:     "Acme v. Widget",
		TimeLines: []TimeLine{
			{Description: "Drafting", Hours: "1.5000", Rate: "50.00", Amount: "75.00"},
		},
		ExpenseLines: []ExpenseLine{{Description: "Court fee", Amount: "44.00"}},
		SubtotalTime: "125.00",
		Total:        "169.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateReceiptProducesPDF(t *testing.T) {
	out, err := New().GenerateReceipt(context.Background(), ReceiptData{
		FirmName:      "Casebill Legal",
		InvoiceNumber: "INV-2024-0001",
		PaymentUID:    "2c1f",
		AmountPaid:    "169.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
