package domain

import "errors"

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidTaxCode   = errors.New("invalid_tax_code")
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrTaxCodeConflict  = errors.New("tax_code_conflict")
	ErrTaxRateDisabled  = errors.New("tax_rate_disabled")
	ErrDuplicateTaxRate = errors.New("duplicate_tax_rate")
)
