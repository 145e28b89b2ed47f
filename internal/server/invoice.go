package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/pkg/db/pagination"
	"go.uber.org/zap"
)

type generateInvoiceRequest struct {
	PeriodStart     string  `json:"period_start"`
	PeriodEnd       string  `json:"period_end"`
	DiscountPercent string  `json:"discount_percent"`
	TaxRate         *string `json:"tax_rate"`
	IncludeExpenses *bool   `json:"include_expenses"`
	AutoSend        bool    `json:"auto_send"`
	Notes           string  `json:"notes"`
}

type generateInvoiceResponse struct {
	Invoice       invoicedomain.InvoiceDetails `json:"invoice"`
	Warnings      []invoicedomain.Warning      `json:"warnings"`
	DispatchError string                       `json:"dispatch_error,omitempty"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body generateInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	periodStart, err := parseOptionalDate(body.PeriodStart)
	if err != nil {
		AbortWithError(c, newValidationError("period_start", "invalid_date", "invalid date"))
		return
	}
	periodEnd, err := parseOptionalDate(body.PeriodEnd)
	if err != nil {
		AbortWithError(c, newValidationError("period_end", "invalid_date", "invalid date"))
		return
	}
	discount := decimal.Zero
	if strings.TrimSpace(body.DiscountPercent) != "" {
		discount, err = decimal.NewFromString(strings.TrimSpace(body.DiscountPercent))
		if err != nil {
			AbortWithError(c, invoicedomain.ErrInvalidDiscount)
			return
		}
	}
	taxRate, err := parseOptionalDecimal(body.TaxRate)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidTaxRate)
		return
	}
	includeExpenses := true
	if body.IncludeExpenses != nil {
		includeExpenses = *body.IncludeExpenses
	}

	result, err := s.invoiceSvc.GenerateInvoice(c.Request.Context(), invoicedomain.GenerateRequest{
		CaseID:          caseID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		DiscountPercent: discount,
		TaxRate:         taxRate,
		IncludeExpenses: includeExpenses,
		AutoSend:        body.AutoSend,
		Actor:           actorFromContext(c),
		Notes:           strings.TrimSpace(body.Notes),
		Source:          invoicedomain.SourceManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := generateInvoiceResponse{
		Invoice:  result.Invoice,
		Warnings: result.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []invoicedomain.Warning{}
	}
	if result.DispatchError != nil {
		s.log.Warn("invoice created but not delivered",
			zap.String("invoice_id", result.Invoice.ID.String()),
			zap.Error(result.DispatchError),
		)
		resp.DispatchError = rootCode(result.DispatchError)
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type listInvoicesQuery struct {
	pagination.Pagination
	CaseID string `form:"case_id"`
	Status string `form:"status"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoiceRequest{Pagination: query.Pagination}
	caseID, err := parseOptionalSnowflakeID(query.CaseID)
	if err != nil {
		AbortWithError(c, newValidationError("case_id", "invalid_case_id", "invalid case_id"))
		return
	}
	req.CaseID = caseID
	if status := strings.ToLower(strings.TrimSpace(query.Status)); status != "" {
		parsed := invoicedomain.InvoiceStatus(status)
		switch parsed {
		case invoicedomain.InvoiceStatusDraft,
			invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusPaid,
			invoicedomain.InvoiceStatusOverdue,
			invoicedomain.InvoiceStatusCancelled:
			req.Status = &parsed
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, name, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) SendInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.SendInvoice(c.Request.Context(), id.String(), actorFromContext(c))
	if err != nil {
		var dispatchErr *invoicedomain.DispatchError
		if errors.As(err, &dispatchErr) {
			s.log.Warn("invoice dispatch failed", zap.String("invoice_id", dispatchErr.InvoiceID), zap.Error(err))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body cancelInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	item, err := s.invoiceSvc.CancelInvoice(c.Request.Context(), id.String(), actorFromContext(c), strings.TrimSpace(body.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) RecomputeInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.invoiceSvc.RecomputeTotals(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

type updatePricingRequest struct {
	DiscountPercent *string `json:"discount_percent"`
	TaxRate         *string `json:"tax_rate"`
}

func (s *Server) UpdateInvoicePricing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body updatePricingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	discount, err := parseOptionalDecimal(body.DiscountPercent)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidDiscount)
		return
	}
	taxRate, err := parseOptionalDecimal(body.TaxRate)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidTaxRate)
		return
	}

	item, err := s.invoiceSvc.UpdatePricing(c.Request.Context(), id.String(), invoicedomain.UpdatePricingRequest{
		DiscountPercent: discount,
		TaxRate:         taxRate,
		Actor:           actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetBillingSummary(c *gin.Context) {
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	year, ok := yearParam(c, s.clock.Now())
	if !ok {
		return
	}

	summary, err := s.invoiceSvc.GetBillingSummary(c.Request.Context(), caseID.String(), year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
