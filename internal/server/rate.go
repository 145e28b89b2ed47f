package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
)

func (s *Server) ListBillingRates(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	items, err := s.rateSvc.List(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []ratedomain.BillingRate{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateBillingRate(c *gin.Context) {
	var req ratedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.rateSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

type updateBillingRateRequest struct {
	Amount string `json:"amount"`
}

// UpdateBillingRate changes the amount of a rate no invoice line references yet.
func (s *Server) UpdateBillingRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body updateBillingRateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.rateSvc.UpdateAmount(c.Request.Context(), id, body.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeactivateBillingRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.rateSvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
