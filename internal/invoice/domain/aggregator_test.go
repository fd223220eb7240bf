package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(t *testing.T, minor int64) money.Money {
	t.Helper()
	m, err := money.New(minor, "USD")
	require.NoError(t, err)
	return m
}

func sampleInvoice(t *testing.T, status InvoiceStatus, paid int64) *Invoice {
	t.Helper()
	lines := []LineItem{{
		ID:        1,
		Quantity:  1,
		UnitPrice: usd(t, 10000),
		Taxes: []LineItemTax{{
			ID:           2,
			LineItemID:   1,
			RateSnapshot: decimal.RequireFromString("3.5"),
			TaxAmount:    usd(t, 350),
		}},
	}}
	totals, err := ComputeTotals("USD", lines)
	require.NoError(t, err)
	return &Invoice{
		ID:             10,
		Currency:       "USD",
		Status:         status,
		SubtotalAmount: totals.Subtotal,
		TaxAmount:      totals.Tax,
		TotalAmount:    totals.Total,
		AmountPaid:     usd(t, paid),
		LineItems:      lines,
	}
}

func TestComputeTotals(t *testing.T) {
	inv := sampleInvoice(t, InvoiceStatusSent, 0)
	assert.Equal(t, int64(10000), inv.SubtotalAmount.Amount())
	assert.Equal(t, int64(350), inv.TaxAmount.Amount())
	assert.Equal(t, int64(10350), inv.TotalAmount.Amount())
	assert.NoError(t, inv.Validate())

	_, err := ComputeTotals("USD", []LineItem{{Quantity: 2, UnitPrice: money.MustParse("1.00", "EUR")}})
	assert.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestValidateDetectsInconsistentTotals(t *testing.T) {
	inv := sampleInvoice(t, InvoiceStatusSent, 0)
	inv.TotalAmount = usd(t, 10351)
	assert.ErrorIs(t, inv.Validate(), ErrInconsistentTotals)
	assert.ErrorIs(t, inv.Validate(), ErrMalformedRecord)

	inv = sampleInvoice(t, InvoiceStatusSent, 10352)
	assert.ErrorIs(t, inv.Validate(), ErrInconsistentTotals)

	inv = sampleInvoice(t, InvoiceStatusPaid, 100)
	assert.ErrorIs(t, inv.Validate(), ErrInconsistentTotals)

	inv = sampleInvoice(t, InvoiceStatusSent, 0)
	inv.LineItems[0].Taxes[0].TaxAmount = usd(t, 349)
	assert.ErrorIs(t, inv.Validate(), ErrInconsistentTotals)

	inv = sampleInvoice(t, "void", 0)
	assert.ErrorIs(t, inv.Validate(), ErrMalformedRecord)
}

func TestApplyPayment(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("partial then full", func(t *testing.T) {
		inv := sampleInvoice(t, InvoiceStatusSent, 0)
		require.NoError(t, inv.ApplyPayment(usd(t, 5000), at))
		assert.Equal(t, InvoiceStatusPartiallyPaid, inv.Status)
		assert.Nil(t, inv.PaidAt)

		remaining, err := inv.Remaining()
		require.NoError(t, err)
		assert.Equal(t, int64(5350), remaining.Amount())

		require.NoError(t, inv.ApplyPayment(remaining, at))
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		require.NotNil(t, inv.PaidAt)
		assert.NoError(t, inv.Validate())
	})

	t.Run("full payment in one step", func(t *testing.T) {
		inv := sampleInvoice(t, InvoiceStatusSent, 0)
		require.NoError(t, inv.ApplyPayment(usd(t, 10350), at))
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
	})

	t.Run("overpayment leaves invoice unchanged", func(t *testing.T) {
		inv := sampleInvoice(t, InvoiceStatusPartiallyPaid, 5000)
		before := *inv
		err := inv.ApplyPayment(usd(t, 5351), at)
		assert.ErrorIs(t, err, ErrOverpaymentRejected)
		assert.Equal(t, before.AmountPaid, inv.AmountPaid)
		assert.Equal(t, before.Status, inv.Status)
	})

	t.Run("terminal states", func(t *testing.T) {
		err := sampleInvoice(t, InvoiceStatusCancelled, 0).ApplyPayment(usd(t, 1), at)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, err, ErrInvoiceCancelled)

		err = sampleInvoice(t, InvoiceStatusPaid, 10350).ApplyPayment(usd(t, 1), at)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, err, ErrInvoiceAlreadyPaid)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		inv := sampleInvoice(t, InvoiceStatusSent, 0)
		assert.ErrorIs(t, inv.ApplyPayment(usd(t, 0), at), ErrInvalidAmount)
		assert.ErrorIs(t, inv.ApplyPayment(usd(t, -5), at), ErrInvalidAmount)
		assert.ErrorIs(t, inv.ApplyPayment(money.MustParse("1.00", "CAD"), at), ErrCurrencyMismatch)
	})
}

func TestStatusMachine(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	inv := sampleInvoice(t, InvoiceStatusDraft, 0)
	require.NoError(t, inv.Issue(at))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
	require.NotNil(t, inv.IssuedAt)
	assert.ErrorIs(t, inv.Issue(at), ErrInvalidTransition)

	for _, status := range []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid} {
		paid := int64(0)
		if status == InvoiceStatusPartiallyPaid {
			paid = 100
		}
		inv := sampleInvoice(t, status, paid)
		require.NoError(t, inv.Cancel("duplicate", at), status)
		assert.Equal(t, InvoiceStatusCancelled, inv.Status)
		require.NotNil(t, inv.CancelReason)
		assert.Equal(t, "duplicate", *inv.CancelReason)
	}

	for _, status := range []InvoiceStatus{InvoiceStatusPaid, InvoiceStatusCancelled} {
		paid := int64(0)
		if status == InvoiceStatusPaid {
			paid = 10350
		}
		err := sampleInvoice(t, status, paid).Cancel("", at)
		assert.ErrorIs(t, err, ErrInvalidTransition, status)
		assert.ErrorIs(t, err, ErrInvalidState, status)
	}
}
