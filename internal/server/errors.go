package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	"github.com/smallbiznis/casebill/internal/authorization"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: rootCode(err),
		}
	case errors.Is(err, invoicedomain.ErrNoUnbilledWork),
		errors.Is(err, invoicedomain.ErrMissingRecipient):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: rootCode(err),
		}
	case errors.Is(err, invoicedomain.ErrDispatchFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "dispatch_failure",
			Message: "invoice could not be delivered",
		}
	case errors.Is(err, invoicedomain.ErrNoApplicableCurrency),
		errors.Is(err, currencydomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: currencydomain.ErrNotConfigured.Error(),
		}
	case errors.Is(err, invoicedomain.ErrInvariantViolation),
		errors.Is(err, currencydomain.ErrInvariantViolation):
		return http.StatusInternalServerError, errorPayload{
			Type:    "invariant_violation",
			Message: "billing data is inconsistent",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a low-cardinality type and code.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, rootCode(err)
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, rootCode(err)
}

// rootCode is the sentinel text before any wrapped detail.
func rootCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,

	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,

	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrInvalidDiscount,
	invoicedomain.ErrInvalidTaxRate,
	invoicedomain.ErrInvalidPeriod,
	invoicedomain.ErrInvalidYear,
	invoicedomain.ErrInvalidPageToken,

	paymentdomain.ErrInvalidInvoiceID,
	paymentdomain.ErrInvalidPaymentID,
	paymentdomain.ErrNonPositiveAmount,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidMethod,

	recurringdomain.ErrInvalidID,
	recurringdomain.ErrInvalidCase,
	recurringdomain.ErrInvalidFrequency,
	recurringdomain.ErrInvalidStartDate,
	recurringdomain.ErrInvalidEndDate,
	recurringdomain.ErrInvalidDiscount,
	recurringdomain.ErrInvalidTaxRate,
	recurringdomain.ErrTemplateCaseMismatch,

	currencydomain.ErrInvalidCode,
	currencydomain.ErrInvalidName,
	currencydomain.ErrInvalidExchangeRate,

	ratedomain.ErrInvalidName,
	ratedomain.ErrInvalidRateType,
	ratedomain.ErrInvalidAmount,
	ratedomain.ErrInvalidCurrency,
	ratedomain.ErrInvalidWorker,

	expensedomain.ErrInvalidCase,
	expensedomain.ErrInvalidWorker,
	expensedomain.ErrInvalidAmount,
	expensedomain.ErrInvalidMarkup,
	expensedomain.ErrInvalidDate,
	expensedomain.ErrInvalidName,
	expensedomain.ErrInvalidCurrency,
	expensedomain.ErrDescriptionEmpty,
	expensedomain.ErrCategoryInactive,
	expensedomain.ErrInvalidYear,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrCaseNotFound),
		errors.Is(err, casedomain.ErrCaseNotFound),
		errors.Is(err, casedomain.ErrClientNotFound),
		errors.Is(err, casedomain.ErrWorkerNotFound),
		errors.Is(err, paymentdomain.ErrInvoiceNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, recurringdomain.ErrRecurringNotFound),
		errors.Is(err, recurringdomain.ErrTemplateNotFound),
		errors.Is(err, currencydomain.ErrCurrencyNotFound),
		errors.Is(err, ratedomain.ErrRateNotFound),
		errors.Is(err, expensedomain.ErrExpenseNotFound),
		errors.Is(err, expensedomain.ErrCategoryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceImmutable),
		errors.Is(err, invoicedomain.ErrInvoiceCancelled),
		errors.Is(err, invoicedomain.ErrInvoiceHasPayments),
		errors.Is(err, invoicedomain.ErrInvoiceNotDraft),
		errors.Is(err, invoicedomain.ErrGenerationInProgress),
		errors.Is(err, invoicedomain.ErrUnresolvedRate),
		errors.Is(err, paymentdomain.ErrInvoiceCancelled),
		errors.Is(err, paymentdomain.ErrPaymentNotRefundable),
		errors.Is(err, currencydomain.ErrDuplicateCode),
		errors.Is(err, currencydomain.ErrBaseCurrencyReadOnly),
		errors.Is(err, ratedomain.ErrRateImmutable),
		errors.Is(err, expensedomain.ErrDuplicateName):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return rootCode(err)
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
