package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/casebill/internal/clock"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
)

func (s *Server) CreateRecurringInvoice(c *gin.Context) {
	var req recurringdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Actor = actorFromContext(c)

	item, err := s.recurringSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListRecurringInvoices(c *gin.Context) {
	activeOnly, err := parseOptionalBool(c.Query("active"))
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	items, err := s.recurringSvc.List(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []recurringdomain.RecurringInvoice{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ActivateRecurringInvoice(c *gin.Context) {
	s.setRecurringActive(c, true)
}

func (s *Server) DeactivateRecurringInvoice(c *gin.Context) {
	s.setRecurringActive(c, false)
}

func (s *Server) setRecurringActive(c *gin.Context, active bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := s.recurringSvc.SetActive(c.Request.Context(), id.String(), active, actorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

type recurringRunResponse struct {
	Date      string                      `json:"date"`
	Generated int                         `json:"generated"`
	Failed    int                         `json:"failed"`
	Results   []recurringdomain.RunResult `json:"results"`
}

// RunRecurringInvoices bills every template due on or before ?date=, which
// defaults to today.
func (s *Server) RunRecurringInvoices(c *gin.Context) {
	date, err := parseOptionalDate(c.Query("date"))
	if err != nil {
		AbortWithError(c, newValidationError("date", "invalid_date", "invalid date"))
		return
	}
	today := clock.Today(s.clock)
	if date != nil {
		today = *date
	}

	results, err := s.recurringSvc.RunDue(c.Request.Context(), today)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := recurringRunResponse{
		Date:    today.Format(dateOnlyLayout),
		Results: results,
	}
	if resp.Results == nil {
		resp.Results = []recurringdomain.RunResult{}
	}
	for _, result := range results {
		if result.Outcome == recurringdomain.OutcomeGenerated {
			resp.Generated++
		} else {
			resp.Failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
