package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/studioledger/pkg/money"
)

var (
	ErrInvalidState    = errors.New("invalid_state")
	ErrMalformedRecord = errors.New("malformed_record")
	ErrStorageFailure  = errors.New("storage_failure")

	ErrInvalidTransition  = fmt.Errorf("invalid_transition: %w", ErrInvalidState)
	ErrInvoiceCancelled   = fmt.Errorf("invoice_cancelled: %w", ErrInvalidState)
	ErrInvoiceAlreadyPaid = fmt.Errorf("invoice_already_paid: %w", ErrInvalidState)
	ErrInconsistentTotals = fmt.Errorf("inconsistent_totals: %w", ErrMalformedRecord)

	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvalidEntity       = errors.New("invalid_entity_id")
	ErrInvalidIssueDate    = errors.New("invalid_issue_date")
	ErrInvalidDueDate      = errors.New("invalid_due_date")
	ErrInvalidLineItems    = errors.New("invalid_line_items")
	ErrInvalidDescription  = errors.New("invalid_description")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidTaxRateID    = errors.New("invalid_tax_rate_id")
	ErrOverpaymentRejected = errors.New("overpayment_rejected")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	ErrInvalidAmount    = money.ErrInvalidAmount
	ErrCurrencyMismatch = money.ErrCurrencyMismatch
	ErrInvalidCurrency  = money.ErrUnknownCurrency
)
