package domain

import (
	"context"

	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
)

// RecordPaymentRequest is the payment form. Amount is a decimal string in
// the invoice currency and PaymentDate is YYYY-MM-DD.
type RecordPaymentRequest struct {
	InvoiceID       string  `json:"-"`
	Amount          string  `json:"amount"`
	Method          string  `json:"payment_method"`
	PaymentDate     string  `json:"payment_date"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type RecordPaymentResponse struct {
	Payment Payment               `json:"payment"`
	Invoice invoicedomain.Invoice `json:"invoice"`
}

// ReconcileTaxBreakdownResponse lists the payments whose breakdown moved
// from pending to complete, with the PaymentTax rows written for them.
type ReconcileTaxBreakdownResponse struct {
	Reconciled []Payment `json:"reconciled"`
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResponse, error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	// ReconcileTaxBreakdown writes the PaymentTax rows that pending payments
	// of the invoice are missing.
	ReconcileTaxBreakdown(ctx context.Context, invoiceID string) (*ReconcileTaxBreakdownResponse, error)
}
