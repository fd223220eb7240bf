package domain

import (
	"time"

	"github.com/smallbiznis/studioledger/pkg/money"
)

// Totals holds the monetary roll-up of an invoice.
type Totals struct {
	Subtotal money.Money
	Tax      money.Money
	Total    money.Money
}

// ComputeTotals rolls line items and their taxes up into invoice totals.
func ComputeTotals(currency string, lines []LineItem) (Totals, error) {
	subtotal, err := money.Zero(currency)
	if err != nil {
		return Totals{}, err
	}
	tax := subtotal

	for _, line := range lines {
		amount, err := line.Amount()
		if err != nil {
			return Totals{}, err
		}
		if subtotal, err = subtotal.Add(amount); err != nil {
			return Totals{}, err
		}
		for _, lt := range line.Taxes {
			if tax, err = tax.Add(lt.TaxAmount); err != nil {
				return Totals{}, err
			}
		}
	}

	total, err := subtotal.Add(tax)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Subtotal: subtotal, Tax: tax, Total: total}, nil
}

// Remaining is total_amount − amount_paid.
func (inv *Invoice) Remaining() (money.Money, error) {
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

// Validate checks the stored amounts against each other and, when line
// items are loaded, against the line items.
func (inv *Invoice) Validate() error {
	if !inv.Status.Valid() {
		return ErrMalformedRecord
	}
	for _, m := range []money.Money{inv.SubtotalAmount, inv.TaxAmount, inv.TotalAmount, inv.AmountPaid} {
		if m.Currency() != inv.Currency || m.IsNegative() {
			return ErrInconsistentTotals
		}
	}

	sum, err := inv.SubtotalAmount.Add(inv.TaxAmount)
	if err != nil || !sum.Equal(inv.TotalAmount) {
		return ErrInconsistentTotals
	}
	if over, _ := inv.AmountPaid.GreaterThan(inv.TotalAmount); over {
		return ErrInconsistentTotals
	}
	if inv.Status == InvoiceStatusPaid && !inv.AmountPaid.Equal(inv.TotalAmount) {
		return ErrInconsistentTotals
	}

	if len(inv.LineItems) == 0 {
		return nil
	}
	totals, err := ComputeTotals(inv.Currency, inv.LineItems)
	if err != nil {
		return ErrInconsistentTotals
	}
	if !totals.Subtotal.Equal(inv.SubtotalAmount) || !totals.Tax.Equal(inv.TaxAmount) {
		return ErrInconsistentTotals
	}
	return nil
}

// StatusAfterPayment is the status an invoice moves to once amount_paid
// reaches paid.
func StatusAfterPayment(paid, total money.Money) InvoiceStatus {
	if paid.Amount() >= total.Amount() {
		return InvoiceStatusPaid
	}
	return InvoiceStatusPartiallyPaid
}

// CheckPayable reports whether amount may be applied to the invoice as it
// stands, without changing it.
func (inv *Invoice) CheckPayable(amount money.Money) error {
	switch inv.Status {
	case InvoiceStatusCancelled:
		return ErrInvoiceCancelled
	case InvoiceStatusPaid:
		return ErrInvoiceAlreadyPaid
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	remaining, err := inv.Remaining()
	if err != nil {
		return err
	}
	exceeds, err := amount.GreaterThan(remaining)
	if err != nil {
		return err
	}
	if exceeds {
		return ErrOverpaymentRejected
	}
	return nil
}

// ApplyPayment adds amount to amount_paid and re-evaluates the status. The
// invoice is left untouched when an error is returned.
func (inv *Invoice) ApplyPayment(amount money.Money, at time.Time) error {
	if err := inv.CheckPayable(amount); err != nil {
		return err
	}
	paid, err := inv.AmountPaid.Add(amount)
	if err != nil {
		return err
	}

	inv.AmountPaid = paid
	inv.Status = StatusAfterPayment(paid, inv.TotalAmount)
	if inv.Status == InvoiceStatusPaid {
		ts := at.UTC()
		inv.PaidAt = &ts
	}
	inv.UpdatedAt = at.UTC()
	return nil
}

// Issue moves a draft invoice to sent.
func (inv *Invoice) Issue(at time.Time) error {
	if inv.Status != InvoiceStatusDraft {
		return ErrInvalidTransition
	}
	ts := at.UTC()
	inv.Status = InvoiceStatusSent
	inv.IssuedAt = &ts
	inv.UpdatedAt = ts
	return nil
}

// Cancel is terminal and allowed from any state but paid and cancelled.
func (inv *Invoice) Cancel(reason string, at time.Time) error {
	if inv.Status.Terminal() {
		return ErrInvalidTransition
	}
	ts := at.UTC()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &ts
	inv.UpdatedAt = ts
	if reason != "" {
		inv.CancelReason = &reason
	}
	return nil
}
