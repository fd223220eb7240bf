package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	EntityID string
	Status   InvoiceStatus
	Cursor   *pagination.Keyset
	Limit    int
}

// PaymentUpdate moves amount_paid from ExpectedPaid to AmountPaid. It only
// applies while the stored amount_paid still equals ExpectedPaid.
type PaymentUpdate struct {
	InvoiceID    snowflake.ID
	ExpectedPaid int64
	AmountPaid   int64
	Status       InvoiceStatus
	PaidAt       *time.Time
	UpdatedAt    time.Time
}

// Repository methods take the handle to run on so callers can share one
// transaction across repositories.
type Repository interface {
	// NextSequence returns the next invoice_seq within a numbering period.
	NextSequence(ctx context.Context, db *gorm.DB, period string) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, period string, seq int64) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	LoadLineItems(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, invoice *Invoice, from InvoiceStatus) (bool, error)
	ApplyPayment(ctx context.Context, db *gorm.DB, update PaymentUpdate) (bool, error)
}
