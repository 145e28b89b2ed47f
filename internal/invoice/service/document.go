package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/casebill/internal/invoice/format"
	"github.com/smallbiznis/casebill/internal/invoice/render"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
)

// RenderPDF returns the invoice document and a download file name.
func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, string, error) {
	details, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	caseDetails, err := s.directory.GetCase(ctx, details.CaseID)
	if err != nil {
		return nil, "", err
	}
	doc, err := s.pdf.GenerateInvoice(ctx, s.pdfData(details, caseDetails))
	if err != nil {
		return nil, "", err
	}
	name := slug.Make(details.InvoiceNumber + " " + caseDetails.Case.Title)
	return doc, name + ".pdf", nil
}

func (s *Service) dispatch(ctx context.Context, details invoicedomain.InvoiceDetails) error {
	if s.dispatcher == nil {
		return fmt.Errorf("dispatcher not configured")
	}
	caseDetails, err := s.directory.GetCase(ctx, details.CaseID)
	if err != nil {
		return err
	}

	to := strings.TrimSpace(caseDetails.Client.Email)
	if to == "" {
		return invoicedomain.ErrMissingRecipient
	}
	var cc []string
	if caseDetails.AssignedWorker != nil {
		if email := strings.TrimSpace(caseDetails.AssignedWorker.Email); email != "" && !strings.EqualFold(email, to) {
			cc = append(cc, email)
		}
	}

	doc, err := s.pdf.GenerateInvoice(ctx, s.pdfData(details, caseDetails))
	if err != nil {
		return fmt.Errorf("render invoice pdf: %w", err)
	}

	return s.dispatcher.Dispatch(ctx, invoicedomain.DispatchRequest{
		Invoice:    details,
		CaseTitle:  caseDetails.Case.Title,
		ClientName: caseDetails.Client.Name,
		To:         []string{to},
		Cc:         cc,
		PDF:        doc,
		PDFName:    invoiceformat.PDFFileName(details.InvoiceNumber),
	})
}

func (s *Service) pdfData(details invoicedomain.InvoiceDetails, caseDetails *casedomain.CaseDetails) pdf.InvoiceData {
	code := details.CurrencyCode
	data := pdf.InvoiceData{
		FirmName:         s.firmName,
		InvoiceNumber:    details.InvoiceNumber,
		IssueDate:        details.IssueDate.Format(time.DateOnly),
		DueDate:          details.DueDate.Format(time.DateOnly),
		ServicePeriod:    ServicePeriod(details.Invoice),
		Status:           string(details.EffectiveStatus),
		ClientName:       caseDetails.Client.Name,
		ClientEmail:      caseDetails.Client.Email,
		CaseTitle:        caseDetails.Case.Title,
		SubtotalTime:     render.FormatMoney(details.SubtotalTime, code),
		SubtotalExpenses: render.FormatMoney(details.SubtotalExpenses, code),
		Discount:         render.FormatMoney(details.DiscountAmount, code),
		TaxLabel:         fmt.Sprintf("Tax (%s%%)", details.TaxRate.String()),
		Tax:              render.FormatMoney(details.TaxAmount, code),
		Total:            render.FormatMoney(details.TotalAmount, code),
		AmountDue:        render.FormatMoney(details.BalanceDue, code),
		Notes:            details.Notes,
	}
	for _, line := range details.TimeEntries {
		data.TimeLines = append(data.TimeLines, pdf.TimeLine{
			Description: line.Description,
			Hours:       line.Hours.StringFixed(2),
			Rate:        render.FormatMoney(line.RateAmount, code),
			Amount:      render.FormatMoney(line.Total, code),
		})
	}
	for _, item := range details.Expenses {
		data.ExpenseLines = append(data.ExpenseLines, pdf.ExpenseLine{
			Description: item.Description,
			Amount:      render.FormatMoney(item.BillableAmount, code),
		})
	}
	return data
}

// ServicePeriod renders the inclusive billing window of an invoice.
func ServicePeriod(invoice invoicedomain.Invoice) string {
	return invoice.PeriodStart.Format(time.DateOnly) + " - " + invoice.PeriodEnd.Format(time.DateOnly)
}
