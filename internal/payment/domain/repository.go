package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	InsertTaxes(ctx context.Context, db *gorm.DB, taxes []PaymentTax) error
	SetTaxBreakdownStatus(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status TaxBreakdownStatus) error
	// CompletePending marks every pending breakdown of the invoice complete
	// and returns how many payments changed.
	CompletePending(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	// AllocatedByLineItemTax sums earlier PaymentTax rows of the invoice per
	// line_item_tax_id.
	AllocatedByLineItemTax(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (map[snowflake.ID]int64, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, currency string) ([]Payment, error)
}
