package domain

import "github.com/shopspring/decimal"

var (
	hundred        = decimal.NewFromInt(100)
	minutesPerHour = decimal.NewFromInt(60)
)

// Totals is the derived money block of an invoice.
type Totals struct {
	SubtotalTime     decimal.Decimal `json:"subtotal_time"`
	SubtotalExpenses decimal.Decimal `json:"subtotal_expenses"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// Equal compares every component numerically.
func (t Totals) Equal(other Totals) bool {
	return t.SubtotalTime.Equal(other.SubtotalTime) &&
		t.SubtotalExpenses.Equal(other.SubtotalExpenses) &&
		t.DiscountAmount.Equal(other.DiscountAmount) &&
		t.TaxAmount.Equal(other.TaxAmount) &&
		t.TotalAmount.Equal(other.TotalAmount)
}

// Recompute derives totals from line amounts. Intermediate sums keep six
// decimal places; only tax and total are rounded to cents, half away from zero.
// The function is pure, so repeated calls on the same lines agree exactly.
func Recompute(timeTotals, expenseAmounts []decimal.Decimal, discountPercent, taxRate decimal.Decimal) Totals {
	subtotalTime := sum(timeTotals).Round(6)
	subtotalExpenses := sum(expenseAmounts).Round(6)
	gross := subtotalTime.Add(subtotalExpenses)

	discount := gross.Mul(discountPercent).Div(hundred).Round(6)
	taxable := gross.Sub(discount)
	tax := taxable.Mul(taxRate).Div(hundred).Round(2)
	total := taxable.Add(tax).Round(2)

	return Totals{
		SubtotalTime:     subtotalTime,
		SubtotalExpenses: subtotalExpenses,
		DiscountAmount:   discount,
		TaxAmount:        tax,
		TotalAmount:      total,
	}
}

// LineTotal prices minutes of work at an hourly rate. Multiplying before
// dividing keeps 90 minutes at 50/h at exactly 75.
func LineTotal(minutes int, rateAmount decimal.Decimal) decimal.Decimal {
	return rateAmount.Mul(decimal.NewFromInt(int64(minutes))).Div(minutesPerHour).Round(6)
}

// Hours converts minutes for display on the invoice line.
func Hours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(minutesPerHour).Round(4)
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, value := range values {
		total = total.Add(value)
	}
	return total
}
