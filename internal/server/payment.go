package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
)

func (s *Server) RecordPayment(c *gin.Context) {
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req paymentdomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.InvoiceID = invoiceID.String()
	req.Actor = actorFromContext(c)

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListPayments(c *gin.Context) {
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	items, err := s.paymentSvc.ListPayments(c.Request.Context(), invoiceID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []paymentdomain.Payment{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.paymentSvc.GetByID(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) RefundPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.paymentSvc.RefundPayment(c.Request.Context(), id.String(), actorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, name, err := s.paymentSvc.RenderReceipt(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
