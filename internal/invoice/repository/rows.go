package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	"github.com/smallbiznis/studioledger/pkg/money"
)

// Monetary columns scan into pointers so a NULL is seen as missing rather
// than as zero.

type invoiceRow struct {
	ID             snowflake.ID `gorm:"column:id"`
	InvoiceNumber  string       `gorm:"column:invoice_number"`
	EntityID       string       `gorm:"column:entity_id"`
	Currency       string       `gorm:"column:currency"`
	Status         string       `gorm:"column:status"`
	IssueDate      *time.Time   `gorm:"column:issue_date"`
	DueDate        *time.Time   `gorm:"column:due_date"`
	SubtotalAmount *int64       `gorm:"column:subtotal_amount"`
	TaxAmount      *int64       `gorm:"column:tax_amount"`
	TotalAmount    *int64       `gorm:"column:total_amount"`
	AmountPaid     *int64       `gorm:"column:amount_paid"`
	Notes          *string      `gorm:"column:notes"`
	IssuedAt       *time.Time   `gorm:"column:issued_at"`
	PaidAt         *time.Time   `gorm:"column:paid_at"`
	CancelledAt    *time.Time   `gorm:"column:cancelled_at"`
	CancelReason   *string      `gorm:"column:cancel_reason"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
	UpdatedAt      time.Time    `gorm:"column:updated_at"`
}

type lineItemRow struct {
	ID          snowflake.ID `gorm:"column:id"`
	InvoiceID   snowflake.ID `gorm:"column:invoice_id"`
	Position    int          `gorm:"column:position"`
	ItemType    string       `gorm:"column:item_type"`
	Description string       `gorm:"column:description"`
	Quantity    *int64       `gorm:"column:quantity"`
	UnitPrice   *int64       `gorm:"column:unit_price"`
}

type lineItemTaxRow struct {
	ID           snowflake.ID        `gorm:"column:id"`
	InvoiceID    snowflake.ID        `gorm:"column:invoice_id"`
	LineItemID   snowflake.ID        `gorm:"column:line_item_id"`
	Position     int                 `gorm:"column:position"`
	TaxRateID    snowflake.ID        `gorm:"column:tax_rate_id"`
	NameSnapshot string              `gorm:"column:name_snapshot"`
	RateSnapshot decimal.NullDecimal `gorm:"column:rate_snapshot"`
	TaxAmount    *int64              `gorm:"column:tax_amount"`
}

func malformed(field string, id snowflake.ID) error {
	return fmt.Errorf("%w: %s on %s", invoicedomain.ErrMalformedRecord, field, id)
}

func nonNegative(field string, id snowflake.ID, value *int64, currency string) (money.Money, error) {
	if value == nil || *value < 0 {
		return money.Money{}, malformed(field, id)
	}
	m, err := money.New(*value, currency)
	if err != nil {
		return money.Money{}, malformed(field, id)
	}
	return m, nil
}

func (r *invoiceRow) toDomain() (*invoicedomain.Invoice, error) {
	if r.ID == 0 {
		return nil, malformed("id", r.ID)
	}
	currency, err := money.NormalizeCurrency(r.Currency)
	if err != nil {
		return nil, malformed("currency", r.ID)
	}
	status := invoicedomain.InvoiceStatus(strings.TrimSpace(r.Status))
	if !status.Valid() {
		return nil, malformed("status", r.ID)
	}
	if r.IssueDate == nil || r.DueDate == nil {
		return nil, malformed("dates", r.ID)
	}

	inv := &invoicedomain.Invoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		EntityID:      r.EntityID,
		Currency:      currency,
		Status:        status,
		IssueDate:     r.IssueDate.UTC(),
		DueDate:       r.DueDate.UTC(),
		Notes:         r.Notes,
		IssuedAt:      r.IssuedAt,
		PaidAt:        r.PaidAt,
		CancelledAt:   r.CancelledAt,
		CancelReason:  r.CancelReason,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if inv.SubtotalAmount, err = nonNegative("subtotal_amount", r.ID, r.SubtotalAmount, currency); err != nil {
		return nil, err
	}
	if inv.TaxAmount, err = nonNegative("tax_amount", r.ID, r.TaxAmount, currency); err != nil {
		return nil, err
	}
	if inv.TotalAmount, err = nonNegative("total_amount", r.ID, r.TotalAmount, currency); err != nil {
		return nil, err
	}
	if inv.AmountPaid, err = nonNegative("amount_paid", r.ID, r.AmountPaid, currency); err != nil {
		return nil, err
	}

	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invoice %s", err, r.ID)
	}
	return inv, nil
}

func (r *lineItemRow) toDomain(currency string) (invoicedomain.LineItem, error) {
	if r.Quantity == nil || *r.Quantity <= 0 {
		return invoicedomain.LineItem{}, malformed("quantity", r.ID)
	}
	price, err := nonNegative("unit_price", r.ID, r.UnitPrice, currency)
	if err != nil {
		return invoicedomain.LineItem{}, err
	}
	return invoicedomain.LineItem{
		ID:          r.ID,
		InvoiceID:   r.InvoiceID,
		ItemType:    r.ItemType,
		Description: r.Description,
		Quantity:    *r.Quantity,
		UnitPrice:   price,
		SortOrder:   r.Position,
	}, nil
}

func (r *lineItemTaxRow) toDomain(currency string) (invoicedomain.LineItemTax, error) {
	if !r.RateSnapshot.Valid {
		return invoicedomain.LineItemTax{}, malformed("rate_snapshot", r.ID)
	}
	amount, err := nonNegative("tax_amount", r.ID, r.TaxAmount, currency)
	if err != nil {
		return invoicedomain.LineItemTax{}, err
	}
	return invoicedomain.LineItemTax{
		ID:           r.ID,
		InvoiceID:    r.InvoiceID,
		LineItemID:   r.LineItemID,
		SortOrder:    r.Position,
		TaxRateID:    r.TaxRateID,
		NameSnapshot: r.NameSnapshot,
		RateSnapshot: r.RateSnapshot.Decimal,
		TaxAmount:    amount,
	}, nil
}
