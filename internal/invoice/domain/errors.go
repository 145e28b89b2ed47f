package domain

import "errors"

var (
	ErrNoUnbilledWork       = errors.New("no_unbilled_work")
	ErrNoApplicableCurrency = errors.New("no_applicable_currency")
	ErrInvariantViolation   = errors.New("invariant_violation")
	ErrInvoiceCancelled     = errors.New("invoice_cancelled")
	ErrInvoiceImmutable     = errors.New("invoice_immutable")
	ErrInvoiceHasPayments   = errors.New("invoice_has_payments")
	ErrInvoiceNotDraft      = errors.New("invoice_not_draft")
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvalidInvoiceID     = errors.New("invalid_invoice_id")
	ErrCaseNotFound         = errors.New("case_not_found")
	ErrInvalidDiscount      = errors.New("invalid_discount_percent")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrInvalidPeriod        = errors.New("invalid_billing_period")
	ErrInvalidYear          = errors.New("invalid_year")
	ErrGenerationInProgress = errors.New("generation_in_progress")
	ErrUnresolvedRate       = errors.New("unresolved_billing_rate")
	ErrDispatchFailure      = errors.New("dispatch_failure")
	ErrMissingRecipient     = errors.New("missing_recipient")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
)

// DispatchError reports that an invoice was stored but could not be sent.
// It matches ErrDispatchFailure with errors.Is.
type DispatchError struct {
	InvoiceID string
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return ErrDispatchFailure.Error()
	}
	return ErrDispatchFailure.Error() + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *DispatchError) Is(target error) bool { return target == ErrDispatchFailure }
