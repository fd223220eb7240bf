package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/studioledger/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
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
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// fieldRule binds a domain validation error to the form field it concerns.
type fieldRule struct {
	err     error
	field   string
	message string
}

var validationRules = []fieldRule{
	{invoicedomain.ErrOverpaymentRejected, "amount", "amount exceeds the outstanding balance"},
	{invoicedomain.ErrInvalidAmount, "amount", "amount must be a positive value in the invoice currency"},
	{paymentdomain.ErrInvalidMethod, "payment_method", "unsupported payment method"},
	{paymentdomain.ErrInvalidPaymentDate, "payment_date", "payment date must be YYYY-MM-DD"},
	{paymentdomain.ErrReferenceTooLong, "reference_number", "reference number is too long"},
	{paymentdomain.ErrNotesTooLong, "notes", "notes are too long"},
	{invoicedomain.ErrInvalidInvoiceID, "id", "invalid invoice id"},
	{invoicedomain.ErrInvalidEntity, "entity_id", "entity is required"},
	{invoicedomain.ErrInvalidIssueDate, "issue_date", "issue date must be YYYY-MM-DD"},
	{invoicedomain.ErrInvalidDueDate, "due_date", "due date must be YYYY-MM-DD and not before the issue date"},
	{invoicedomain.ErrInvalidLineItems, "line_items", "at least one line item is required"},
	{invoicedomain.ErrInvalidDescription, "description", "line item description is required"},
	{invoicedomain.ErrInvalidQuantity, "quantity", "quantity must be positive"},
	{invoicedomain.ErrInvalidUnitPrice, "unit_price", "unit price must not be negative"},
	{invoicedomain.ErrInvalidTaxRateID, "tax_rate_ids", "invalid tax rate id"},
	{invoicedomain.ErrCurrencyMismatch, "currency", "currency does not match the invoice"},
	{invoicedomain.ErrInvalidCurrency, "currency", "unknown currency"},
	{invoicedomain.ErrInvalidStatus, "status", "unknown invoice status"},
	{invoicedomain.ErrInvalidPageToken, "page_token", "invalid page token"},
	{taxdomain.ErrInvalidName, "name", "name is required"},
	{taxdomain.ErrInvalidID, "id", "invalid tax rate id"},
	{taxdomain.ErrInvalidTaxCode, "code", "invalid tax code"},
	{taxdomain.ErrInvalidTaxRate, "rate", "rate must be a percentage between 0 and 100 with at most four decimals"},
	{taxdomain.ErrInvalidQuantity, "quantity", "quantity must be positive"},
	{taxdomain.ErrTaxRateDisabled, "tax_rate_ids", "tax rate is disabled"},
	{taxdomain.ErrDuplicateTaxRate, "tax_rate_ids", "tax rate applied twice to one line item"},
	{auditdomain.ErrInvalidPageToken, "page_token", "invalid page token"},
	{auditdomain.ErrInvalidTimeRange, "start_at", "start_at must not be after end_at"},
	{auditdomain.ErrInvalidAction, "action", "invalid action"},
	{ErrInvalidRequest, "request", "invalid request"},
}

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
		return http.StatusInternalServerError, internalPayload("internal_error")
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if rule, ok := matchValidationRule(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   rule.field,
					Code:    errorCode(rule.err),
					Message: rule.message,
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, invoicedomain.ErrInvalidState):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: "invoice does not accept this operation in its current state",
			Errors: []ValidationError{
				{Field: "general", Code: errorCode(err), Message: "invalid invoice state"},
			},
		}
	case errors.Is(err, paymentdomain.ErrConcurrentPayment):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "another payment is being recorded for this invoice",
			Errors: []ValidationError{
				{Field: "general", Code: "concurrent_payment", Message: "retry the payment"},
			},
		}
	case errors.Is(err, taxdomain.ErrTaxCodeConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Errors: []ValidationError{
				{Field: "code", Code: "tax_code_conflict", Message: "tax code already exists"},
			},
		}
	case errors.Is(err, invoicedomain.ErrMalformedRecord):
		return http.StatusInternalServerError, internalPayload("malformed_record")
	case errors.Is(err, invoicedomain.ErrStorageFailure):
		return http.StatusInternalServerError, internalPayload("storage_failure")
	default:
		return http.StatusInternalServerError, internalPayload("internal_error")
	}
}

// internalPayload never echoes the underlying error; storage messages can
// carry SQL fragments.
func internalPayload(code string) errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
		Errors: []ValidationError{
			{Field: "general", Code: code, Message: "the request could not be completed"},
		},
	}
}

// classifyErrorForLog feeds error_type/error_code into the request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchValidationRule(err error) (fieldRule, bool) {
	for _, rule := range validationRules {
		if errors.Is(err, rule.err) {
			return rule, true
		}
	}
	return fieldRule{}, false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, taxdomain.ErrNotFound):
		return true
	default:
		return false
	}
}

// errorCode reduces "invoice_cancelled: invalid_state" to its leading code.
func errorCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}
