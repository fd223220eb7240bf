package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	"github.com/smallbiznis/studioledger/pkg/money"
)

type paymentRow struct {
	ID                 snowflake.ID `gorm:"column:id"`
	InvoiceID          snowflake.ID `gorm:"column:invoice_id"`
	Amount             *int64       `gorm:"column:amount"`
	Currency           string       `gorm:"column:currency"`
	Method             string       `gorm:"column:method"`
	PaymentDate        *time.Time   `gorm:"column:payment_date"`
	ReferenceNumber    *string      `gorm:"column:reference_number"`
	Notes              *string      `gorm:"column:notes"`
	TaxBreakdownStatus string       `gorm:"column:tax_breakdown_status"`
	CreatedAt          time.Time    `gorm:"column:created_at"`
}

type paymentTaxRow struct {
	ID            snowflake.ID        `gorm:"column:id"`
	PaymentID     snowflake.ID        `gorm:"column:payment_id"`
	LineItemTaxID snowflake.ID        `gorm:"column:line_item_tax_id"`
	TaxRateID     snowflake.ID        `gorm:"column:tax_rate_id"`
	NameSnapshot  string              `gorm:"column:name_snapshot"`
	RateSnapshot  decimal.NullDecimal `gorm:"column:rate_snapshot"`
	TaxAmount     *int64              `gorm:"column:tax_amount"`
	CreatedAt     time.Time           `gorm:"column:created_at"`
}

type allocatedRow struct {
	LineItemTaxID snowflake.ID `gorm:"column:line_item_tax_id"`
	Allocated     *int64       `gorm:"column:allocated"`
}

func malformed(field string, id snowflake.ID) error {
	return fmt.Errorf("%w: %s on %s", paymentdomain.ErrMalformedRecord, field, id)
}

func (r *paymentRow) toDomain(currency string) (paymentdomain.Payment, error) {
	if r.ID == 0 {
		return paymentdomain.Payment{}, malformed("id", r.ID)
	}
	if !strings.EqualFold(strings.TrimSpace(r.Currency), currency) {
		return paymentdomain.Payment{}, malformed("currency", r.ID)
	}
	if r.Amount == nil || *r.Amount <= 0 {
		return paymentdomain.Payment{}, malformed("amount", r.ID)
	}
	amount, err := money.New(*r.Amount, currency)
	if err != nil {
		return paymentdomain.Payment{}, malformed("amount", r.ID)
	}
	method := paymentdomain.Method(strings.TrimSpace(r.Method))
	if !method.Valid() {
		return paymentdomain.Payment{}, malformed("method", r.ID)
	}
	status := paymentdomain.TaxBreakdownStatus(strings.TrimSpace(r.TaxBreakdownStatus))
	if !status.Valid() {
		return paymentdomain.Payment{}, malformed("tax_breakdown_status", r.ID)
	}
	if r.PaymentDate == nil {
		return paymentdomain.Payment{}, malformed("payment_date", r.ID)
	}

	return paymentdomain.Payment{
		ID:                 r.ID,
		InvoiceID:          r.InvoiceID,
		Amount:             amount,
		Method:             method,
		PaymentDate:        r.PaymentDate.UTC(),
		ReferenceNumber:    r.ReferenceNumber,
		Notes:              r.Notes,
		TaxBreakdownStatus: status,
		CreatedAt:          r.CreatedAt.UTC(),
		Taxes:              []paymentdomain.PaymentTax{},
	}, nil
}

func (r *paymentTaxRow) toDomain(currency string) (paymentdomain.PaymentTax, error) {
	if !r.RateSnapshot.Valid {
		return paymentdomain.PaymentTax{}, malformed("rate_snapshot", r.ID)
	}
	if r.TaxAmount == nil || *r.TaxAmount < 0 {
		return paymentdomain.PaymentTax{}, malformed("tax_amount", r.ID)
	}
	amount, err := money.New(*r.TaxAmount, currency)
	if err != nil {
		return paymentdomain.PaymentTax{}, malformed("tax_amount", r.ID)
	}
	return paymentdomain.PaymentTax{
		ID:            r.ID,
		PaymentID:     r.PaymentID,
		LineItemTaxID: r.LineItemTaxID,
		TaxRateID:     r.TaxRateID,
		NameSnapshot:  r.NameSnapshot,
		RateSnapshot:  r.RateSnapshot.Decimal,
		TaxAmount:     amount,
		CreatedAt:     r.CreatedAt.UTC(),
	}, nil
}
