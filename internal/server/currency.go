package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
)

func (s *Server) ListCurrencies(c *gin.Context) {
	items, err := s.currencySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []currencydomain.Currency{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateCurrency(c *gin.Context) {
	var req currencydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.currencySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) SetBaseCurrency(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.currencySvc.SetBase(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

type updateExchangeRateRequest struct {
	ExchangeRate string `json:"exchange_rate"`
}

func (s *Server) UpdateExchangeRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body updateExchangeRateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.currencySvc.UpdateExchangeRate(c.Request.Context(), id, body.ExchangeRate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeactivateCurrency(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.currencySvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
