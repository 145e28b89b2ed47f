package service

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/casebill/internal/config"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/invoice/render"
	"github.com/smallbiznis/casebill/internal/providers/email"
	"go.uber.org/zap"
)

// EmailDispatcher delivers invoices as an HTML message with the PDF attached.
type EmailDispatcher struct {
	sender   email.Provider
	renderer *render.HTMLRenderer
	firmName string
	log      *zap.Logger
}

func NewEmailDispatcher(sender email.Provider, renderer *render.HTMLRenderer, cfg config.Config, log *zap.Logger) invoicedomain.Dispatcher {
	return &EmailDispatcher{
		sender:   sender,
		renderer: renderer,
		firmName: cfg.FirmName,
		log:      log.Named("invoice.dispatcher"),
	}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, req invoicedomain.DispatchRequest) error {
	if len(req.To) == 0 {
		return invoicedomain.ErrMissingRecipient
	}
	invoice := req.Invoice

	body, err := d.renderer.RenderEmail(render.EmailInput{
		FirmName:         d.firmName,
		ClientName:       req.ClientName,
		CaseTitle:        req.CaseTitle,
		InvoiceNumber:    invoice.InvoiceNumber,
		ServicePeriod:    ServicePeriod(invoice.Invoice),
		DueDate:          invoice.DueDate.Format(time.DateOnly),
		Currency:         invoice.CurrencyCode,
		SubtotalTime:     invoice.SubtotalTime,
		SubtotalExpenses: invoice.SubtotalExpenses,
		TaxAmount:        invoice.TaxAmount,
		Total:            invoice.TotalAmount,
	})
	if err != nil {
		return fmt.Errorf("render invoice email: %w", err)
	}

	msg := email.Message{
		To:       req.To,
		Cc:       req.Cc,
		Subject:  fmt.Sprintf("Invoice %s - %s", invoice.InvoiceNumber, req.CaseTitle),
		HTMLBody: body,
	}
	if len(req.PDF) > 0 {
		msg.Attachments = append(msg.Attachments, email.Attachment{
			Name:        req.PDFName,
			ContentType: "application/pdf",
			Data:        req.PDF,
		})
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return err
	}
	d.log.Info("invoice email sent",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int("recipients", len(req.To)+len(req.Cc)),
	)
	return nil
}
