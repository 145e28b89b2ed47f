package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
)

func (s *Server) CreateExpense(c *gin.Context) {
	var req expensedomain.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.expenseSvc.CreateExpense(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetExpense(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.expenseSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetExpenseSummary(c *gin.Context) {
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	year, ok := yearParam(c, s.clock.Now())
	if !ok {
		return
	}

	summary, err := s.expenseSvc.GetSummary(c.Request.Context(), caseID, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListExpenseCategories(c *gin.Context) {
	items, err := s.expenseSvc.ListCategories(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []expensedomain.ExpenseCategory{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateExpenseCategory(c *gin.Context) {
	var req expensedomain.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.expenseSvc.CreateCategory(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}
