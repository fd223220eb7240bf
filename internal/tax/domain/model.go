package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/money"
)

// MaxRateScale is the number of fractional digits a percentage rate may carry.
const MaxRateScale = 4

var hundred = decimal.NewFromInt(100)

// TaxRate is the mutable master record staff maintain. Invoices copy its
// name and rate at creation time, so edits never reach issued documents.
type TaxRate struct {
	ID          snowflake.ID    `gorm:"column:id;primaryKey"`
	Code        string          `gorm:"column:code"`
	Name        string          `gorm:"column:name"`
	Rate        decimal.Decimal `gorm:"column:rate"` // percentage, 8.25 means 8.25%
	Description *string         `gorm:"column:description"`
	IsEnabled   bool            `gorm:"column:is_enabled"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (t *TaxRate) Validate() error {
	if t.Code == "" {
		return ErrInvalidTaxCode
	}
	if t.Name == "" {
		return ErrInvalidName
	}
	return ValidateRate(t.Rate)
}

// ValidateRate checks a percentage rate is within [0, 100] and carries at
// most MaxRateScale fractional digits.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return ErrInvalidTaxRate
	}
	if !rate.Equal(rate.Truncate(MaxRateScale)) {
		return ErrInvalidTaxRate
	}
	return nil
}

// LineTax is one computed tax on one line item, with the rate's name and
// percentage frozen as of the computation.
type LineTax struct {
	TaxRateID    snowflake.ID
	NameSnapshot string
	RateSnapshot decimal.Decimal
	Amount       money.Money
}
