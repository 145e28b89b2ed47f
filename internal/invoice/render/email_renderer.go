package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

const invoiceEmailTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.InvoiceNumber}}</title>
</head>
<body style="font-family: Helvetica, Arial, sans-serif; color: #1a1f36;">
  <p>Dear {{.ClientName}},</p>
  <p>Please find attached invoice <strong>{{.InvoiceNumber}}</strong> for
     <em>{{.CaseTitle}}</em>, covering {{.ServicePeriod}}.</p>
  <table style="border-collapse: collapse;">
    <tr><td style="padding: 2px 12px 2px 0;">Professional services</td><td style="text-align: right;">{{formatMoney .SubtotalTime .Currency}}</td></tr>
    {{if not .SubtotalExpenses.IsZero}}<tr><td style="padding: 2px 12px 2px 0;">Expenses</td><td style="text-align: right;">{{formatMoney .SubtotalExpenses .Currency}}</td></tr>{{end}}
    {{if not .TaxAmount.IsZero}}<tr><td style="padding: 2px 12px 2px 0;">Tax</td><td style="text-align: right;">{{formatMoney .TaxAmount .Currency}}</td></tr>{{end}}
    <tr><td style="padding: 6px 12px 2px 0;"><strong>Total due</strong></td><td style="text-align: right;"><strong>{{formatMoney .Total .Currency}}</strong></td></tr>
  </table>
  <p>Payment is due by {{.DueDate}}.</p>
  <p>{{.FirmName}}</p>
</body>
</html>
`

// EmailInput is the content of the message that carries an invoice PDF.
type EmailInput struct {
	FirmName         string
	ClientName       string
	CaseTitle        string
	InvoiceNumber    string
	ServicePeriod    string
	DueDate          string
	Currency         string
	SubtotalTime     decimal.Decimal
	SubtotalExpenses decimal.Decimal
	TaxAmount        decimal.Decimal
	Total            decimal.Decimal
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"formatMoney": FormatMoney,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice_email").Funcs(funcs).Parse(invoiceEmailTemplate)),
	}
}

func (r *HTMLRenderer) RenderEmail(input EmailInput) (string, error) {
	if strings.TrimSpace(input.ClientName) == "" {
		input.ClientName = "client"
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatMoney renders an amount with two decimals and its currency code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return amount.StringFixed(2)
	}
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}
