// Package domain holds the invoice model and its status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/money"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the invoice accepts no further payments.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice is a bill issued to an entity. Line items and their tax snapshots
// are fixed at creation; only amount_paid and status move afterwards.
type Invoice struct {
	ID             snowflake.ID  `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"`
	EntityID       string        `json:"entity_id"`
	Currency       string        `json:"currency"`
	Status         InvoiceStatus `json:"status"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	SubtotalAmount money.Money   `json:"subtotal_amount"`
	TaxAmount      money.Money   `json:"tax_amount"`
	TotalAmount    money.Money   `json:"total_amount"`
	AmountPaid     money.Money   `json:"amount_paid"`
	Notes          *string       `json:"notes,omitempty"`
	IssuedAt       *time.Time    `json:"issued_at,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason   *string       `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	LineItems      []LineItem    `json:"line_items,omitempty"`
}

type LineItem struct {
	ID          snowflake.ID  `json:"id"`
	InvoiceID   snowflake.ID  `json:"invoice_id"`
	ItemType    string        `json:"item_type"`
	Description string        `json:"description"`
	Quantity    int64         `json:"quantity"`
	UnitPrice   money.Money   `json:"unit_price"`
	SortOrder   int           `json:"sort_order"`
	Taxes       []LineItemTax `json:"taxes,omitempty"`
}

// Amount is quantity × unit price.
func (l LineItem) Amount() (money.Money, error) {
	return l.UnitPrice.MulQuantity(l.Quantity)
}

// LineItemTax is a tax rate frozen onto one line item.
type LineItemTax struct {
	ID           snowflake.ID    `json:"id"`
	InvoiceID    snowflake.ID    `json:"invoice_id"`
	LineItemID   snowflake.ID    `json:"line_item_id"`
	SortOrder    int             `json:"sort_order"`
	TaxRateID    snowflake.ID    `json:"tax_rate_id"`
	NameSnapshot string          `json:"name_snapshot"`
	RateSnapshot decimal.Decimal `json:"rate_snapshot"`
	TaxAmount    money.Money     `json:"tax_amount"`
}

// TaxLines flattens the invoice's taxes in invoice order: line order first,
// then tax order within the line.
func (inv *Invoice) TaxLines() []LineItemTax {
	var out []LineItemTax
	for _, line := range inv.LineItems {
		out = append(out, line.Taxes...)
	}
	return out
}
