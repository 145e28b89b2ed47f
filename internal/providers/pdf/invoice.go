package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/core/entity"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// InvoiceData is the pre-formatted content of an invoice document. Amounts
// arrive as display strings so the renderer never does arithmetic.
type InvoiceData struct {
	FirmName      string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	ServicePeriod string
	Status        string

	ClientName  string
	ClientEmail string
	CaseTitle   string

	TimeLines    []TimeLine
	ExpenseLines []ExpenseLine

	SubtotalTime     string
	SubtotalExpenses string
	Discount         string
	TaxLabel         string
	Tax              string
	Total            string
	AmountDue        string
	Notes            string
}

type TimeLine struct {
	Description string
	Hours       string
	Rate        string
	Amount      string
}

type ExpenseLine struct {
	Description string
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	m := maroto.New(pageConfig())

	m.AddRow(12,
		text.NewCol(8, invoice.FirmName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "INVOICE", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 5}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 10}),
			text.New("Service period: "+invoice.ServicePeriod, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(invoice.ClientName, props.Text{Top: 5, Align: align.Right}),
			text.New(invoice.ClientEmail, props.Text{Top: 10, Align: align.Right}),
			text.New("Matter: "+invoice.CaseTitle, props.Text{Top: 15, Align: align.Right}),
		),
	)

	if len(invoice.TimeLines) > 0 {
		m.AddRow(10, text.NewCol(12, "Professional services", props.Text{Style: fontstyle.Bold, Top: 3}))
		m.AddRow(7,
			text.NewCol(6, "Description", headerText(align.Left)),
			text.NewCol(2, "Hours", headerText(align.Right)),
			text.NewCol(2, "Rate", headerText(align.Right)),
			text.NewCol(2, "Amount", headerText(align.Right)),
		)
		for _, line := range invoice.TimeLines {
			m.AddRow(6,
				text.NewCol(6, line.Description, cellText(align.Left)),
				text.NewCol(2, line.Hours, cellText(align.Right)),
				text.NewCol(2, line.Rate, cellText(align.Right)),
				text.NewCol(2, line.Amount, cellText(align.Right)),
			)
		}
	}

	if len(invoice.ExpenseLines) > 0 {
		m.AddRow(10, text.NewCol(12, "Expenses", props.Text{Style: fontstyle.Bold, Top: 3}))
		m.AddRow(7,
			text.NewCol(10, "Description", headerText(align.Left)),
			text.NewCol(2, "Amount", headerText(align.Right)),
		)
		for _, line := range invoice.ExpenseLines {
			m.AddRow(6,
				text.NewCol(10, line.Description, cellText(align.Left)),
				text.NewCol(2, line.Amount, cellText(align.Right)),
			)
		}
	}

	m.AddRow(6, col.New(12))
	addTotalRow(m, "Professional services", invoice.SubtotalTime, false)
	addTotalRow(m, "Expenses", invoice.SubtotalExpenses, false)
	addTotalRow(m, "Discount", invoice.Discount, false)
	addTotalRow(m, invoice.TaxLabel, invoice.Tax, false)
	addTotalRow(m, "Total", invoice.Total, true)
	addTotalRow(m, "Amount due", invoice.AmountDue, true)

	if invoice.Notes != "" {
		m.AddRow(14, text.NewCol(12, invoice.Notes, props.Text{Size: 8, Top: 6}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func pageConfig() *entity.Config {
	return config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
}

func addTotalRow(m core.Maroto, label, value string, bold bool) {
	if value == "" {
		return
	}
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(6,
		col.New(7),
		text.NewCol(3, label, props.Text{Size: 9, Style: style}),
		text.NewCol(2, value, props.Text{Size: 9, Style: style, Align: align.Right}),
	)
}

func headerText(a align.Type) props.Text {
	return props.Text{Style: fontstyle.Bold, Size: 9, Align: a}
}

func cellText(a align.Type) props.Text {
	return props.Text{Size: 9, Align: a}
}
