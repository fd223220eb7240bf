package domain

import (
	"errors"

	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
)

var (
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidPaymentDate = errors.New("invalid_payment_date")
	ErrReferenceTooLong   = errors.New("reference_number_too_long")
	ErrNotesTooLong       = errors.New("notes_too_long")
	ErrConcurrentPayment  = errors.New("concurrent_payment")
	ErrTaxBreakdownFailed = errors.New("tax_breakdown_failed")

	// Shared with the invoice package so callers can match either name.
	ErrInvalidAmount       = invoicedomain.ErrInvalidAmount
	ErrInvalidInvoiceID    = invoicedomain.ErrInvalidInvoiceID
	ErrInvoiceNotFound     = invoicedomain.ErrInvoiceNotFound
	ErrInvalidState        = invoicedomain.ErrInvalidState
	ErrOverpaymentRejected = invoicedomain.ErrOverpaymentRejected
	ErrMalformedRecord     = invoicedomain.ErrMalformedRecord
	ErrStorageFailure      = invoicedomain.ErrStorageFailure
)
