// Package domain holds payments recorded against invoices and their tax
// breakdown.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/money"
)

// Method is how the studio received the money.
type Method string

const (
	MethodCash         Method = "cash"
	MethodCheck        Method = "check"
	MethodBankTransfer Method = "bank_transfer"
	MethodCreditCard   Method = "credit_card"
	MethodACH          Method = "ach"
	MethodOther        Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCheck, MethodBankTransfer, MethodCreditCard, MethodACH, MethodOther:
		return true
	}
	return false
}

// TaxBreakdownStatus tells whether the PaymentTax rows of a payment were
// written.
type TaxBreakdownStatus string

const (
	TaxBreakdownComplete      TaxBreakdownStatus = "complete"
	TaxBreakdownPending       TaxBreakdownStatus = "pending"
	TaxBreakdownNotApplicable TaxBreakdownStatus = "not_applicable"
)

func (s TaxBreakdownStatus) Valid() bool {
	switch s {
	case TaxBreakdownComplete, TaxBreakdownPending, TaxBreakdownNotApplicable:
		return true
	}
	return false
}

// Payment is money received against one invoice. Payments are never edited.
type Payment struct {
	ID                 snowflake.ID       `json:"id"`
	InvoiceID          snowflake.ID       `json:"invoice_id"`
	Amount             money.Money        `json:"amount"`
	Method             Method             `json:"payment_method"`
	PaymentDate        time.Time          `json:"payment_date"`
	ReferenceNumber    *string            `json:"reference_number,omitempty"`
	Notes              *string            `json:"notes,omitempty"`
	TaxBreakdownStatus TaxBreakdownStatus `json:"tax_breakdown_status"`
	CreatedAt          time.Time          `json:"created_at"`
	Taxes              []PaymentTax       `json:"taxes"`
}

// PaymentTax is the part of a payment that settles one LineItemTax. Name and
// rate are copied from the LineItemTax snapshot.
type PaymentTax struct {
	ID            snowflake.ID    `json:"id"`
	PaymentID     snowflake.ID    `json:"payment_id"`
	LineItemTaxID snowflake.ID    `json:"line_item_tax_id"`
	TaxRateID     snowflake.ID    `json:"tax_rate_id"`
	NameSnapshot  string          `json:"name_snapshot"`
	RateSnapshot  decimal.Decimal `json:"rate_snapshot"`
	TaxAmount     money.Money     `json:"tax_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TaxTotal adds up the payment's PaymentTax rows.
func (p *Payment) TaxTotal() (money.Money, error) {
	total, err := money.Zero(p.Amount.Currency())
	if err != nil {
		return money.Money{}, err
	}
	for _, tax := range p.Taxes {
		if total, err = total.Add(tax.TaxAmount); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}
