package service

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	"github.com/smallbiznis/studioledger/pkg/money"
)

type calculator struct{}

func NewCalculator() taxdomain.Calculator {
	return calculator{}
}

// ComputeLineItemTaxes returns one LineTax per rate, in the order given:
//
//	tax = RoundHalfEven(unit_price × quantity × rate / 100)
//
// The product is evaluated exactly before the single rounding step.
func (calculator) ComputeLineItemTaxes(unitPrice money.Money, quantity int64, rates []taxdomain.TaxRate) ([]taxdomain.LineTax, error) {
	if quantity <= 0 {
		return nil, taxdomain.ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return nil, money.ErrInvalidAmount
	}
	base, err := unitPrice.MulQuantity(quantity)
	if err != nil {
		return nil, err
	}

	seen := make(map[snowflake.ID]struct{}, len(rates))
	out := make([]taxdomain.LineTax, 0, len(rates))
	for _, rate := range rates {
		if !rate.IsEnabled {
			return nil, taxdomain.ErrTaxRateDisabled
		}
		if _, dup := seen[rate.ID]; dup {
			return nil, taxdomain.ErrDuplicateTaxRate
		}
		seen[rate.ID] = struct{}{}
		if err := taxdomain.ValidateRate(rate.Rate); err != nil {
			return nil, err
		}

		minor := money.RoundHalfEven(decimal.NewFromInt(base.Amount()).Mul(rate.Rate).Shift(-2))
		amount, err := money.New(minor, base.Currency())
		if err != nil {
			return nil, err
		}
		out = append(out, taxdomain.LineTax{
			TaxRateID:    rate.ID,
			NameSnapshot: rate.Name,
			RateSnapshot: rate.Rate,
			Amount:       amount,
		})
	}
	return out, nil
}
