package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData acknowledges one payment against an invoice.
type ReceiptData struct {
	FirmName      string
	InvoiceNumber string
	ClientName    string
	PaymentUID    string
	DatePaid      string
	Method        string
	AmountPaid    string
	InvoiceTotal  string
	BalanceDue    string
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	m := maroto.New(pageConfig())

	m.AddRow(12,
		text.NewCol(8, receipt.FirmName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "RECEIPT", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Receipt: "+receipt.PaymentUID, props.Text{Top: 0}),
			text.New("Invoice number: "+receipt.InvoiceNumber, props.Text{Top: 5}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 10}),
			text.New("Method: "+receipt.Method, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(receipt.ClientName, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(6, col.New(12))
	addTotalRow(m, "Amount paid", receipt.AmountPaid, true)
	addTotalRow(m, "Invoice total", receipt.InvoiceTotal, false)
	addTotalRow(m, "Balance due", receipt.BalanceDue, false)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
