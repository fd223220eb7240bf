package service

import (
	"testing"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	"github.com/smallbiznis/studioledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rate(id int64, name, pct string) taxdomain.TaxRate {
	return taxdomain.TaxRate{
		ID:        snowflakeID(id),
		Code:      name,
		Name:      name,
		Rate:      decimal.RequireFromString(pct),
		IsEnabled: true,
	}
}

func TestComputeLineItemTaxes(t *testing.T) {
	calc := NewCalculator()

	t.Run("single rate", func(t *testing.T) {
		taxes, err := calc.ComputeLineItemTaxes(money.MustParse("100.00", "USD"), 1, []taxdomain.TaxRate{rate(1, "Sales", "3.5")})
		require.NoError(t, err)
		require.Len(t, taxes, 1)
		assert.Equal(t, int64(350), taxes[0].Amount.Amount())
		assert.Equal(t, "Sales", taxes[0].NameSnapshot)
		assert.True(t, taxes[0].RateSnapshot.Equal(decimal.RequireFromString("3.5")))
	})

	t.Run("multiple rates keep order", func(t *testing.T) {
		taxes, err := calc.ComputeLineItemTaxes(money.MustParse("19.99", "USD"), 3, []taxdomain.TaxRate{
			rate(2, "GST", "5"),
			rate(3, "PST", "7"),
		})
		require.NoError(t, err)
		require.Len(t, taxes, 2)
		// 5997 × 5% = 299.85, 5997 × 7% = 419.79
		assert.Equal(t, int64(300), taxes[0].Amount.Amount())
		assert.Equal(t, int64(420), taxes[1].Amount.Amount())
	})

	t.Run("ties round to even", func(t *testing.T) {
		// 50 × 5% = 2.5 → 2, 70 × 5% = 3.5 → 4
		taxes, err := calc.ComputeLineItemTaxes(money.MustParse("0.50", "USD"), 1, []taxdomain.TaxRate{rate(4, "A", "5")})
		require.NoError(t, err)
		assert.Equal(t, int64(2), taxes[0].Amount.Amount())

		taxes, err = calc.ComputeLineItemTaxes(money.MustParse("0.70", "USD"), 1, []taxdomain.TaxRate{rate(4, "A", "5")})
		require.NoError(t, err)
		assert.Equal(t, int64(4), taxes[0].Amount.Amount())
	})

	t.Run("fractional percentage", func(t *testing.T) {
		taxes, err := calc.ComputeLineItemTaxes(money.MustParse("80.00", "USD"), 2, []taxdomain.TaxRate{rate(5, "City", "8.875")})
		require.NoError(t, err)
		assert.Equal(t, int64(1420), taxes[0].Amount.Amount())
	})

	t.Run("no rates", func(t *testing.T) {
		taxes, err := calc.ComputeLineItemTaxes(money.MustParse("10.00", "USD"), 1, nil)
		require.NoError(t, err)
		assert.Empty(t, taxes)
	})

	t.Run("rejections", func(t *testing.T) {
		price := money.MustParse("10.00", "USD")

		_, err := calc.ComputeLineItemTaxes(price, 0, nil)
		assert.ErrorIs(t, err, taxdomain.ErrInvalidQuantity)

		disabled := rate(6, "Old", "4")
		disabled.IsEnabled = false
		_, err = calc.ComputeLineItemTaxes(price, 1, []taxdomain.TaxRate{disabled})
		assert.ErrorIs(t, err, taxdomain.ErrTaxRateDisabled)

		_, err = calc.ComputeLineItemTaxes(price, 1, []taxdomain.TaxRate{rate(7, "X", "4"), rate(7, "X", "4")})
		assert.ErrorIs(t, err, taxdomain.ErrDuplicateTaxRate)

		_, err = calc.ComputeLineItemTaxes(price, 1, []taxdomain.TaxRate{rate(8, "Bad", "100.5")})
		assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

		_, err = calc.ComputeLineItemTaxes(money.MustParse("-1.00", "USD"), 1, nil)
		assert.ErrorIs(t, err, money.ErrInvalidAmount)
	})
}

func TestValidateRate(t *testing.T) {
	for _, ok := range []string{"0", "8.25", "8.2500", "100", "0.0001"} {
		assert.NoError(t, taxdomain.ValidateRate(decimal.RequireFromString(ok)), ok)
	}
	for _, bad := range []string{"-1", "100.0001", "8.12345"} {
		assert.ErrorIs(t, taxdomain.ValidateRate(decimal.RequireFromString(bad)), taxdomain.ErrInvalidTaxRate, bad)
	}
}
