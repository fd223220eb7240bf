// Package proration splits the tax share of a payment across the tax lines
// of an invoice using integer minor units only.
package proration

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/pkg/money"
)

var ErrInvalidInput = errors.New("invalid_proration_input")

// TaxLine is one LineItemTax of the invoice together with what earlier
// payments already settled against it.
type TaxLine struct {
	ID        snowflake.ID
	TaxRateID snowflake.ID
	Name      string
	Rate      decimal.Decimal
	Amount    int64
	Allocated int64
}

func (l TaxLine) remaining() int64 {
	return l.Amount - l.Allocated
}

// Input describes one payment against an invoice. Lines must be in invoice
// order: line item position, then tax position within the line.
type Input struct {
	Total      int64
	TaxAmount  int64
	PaidBefore int64
	Amount     int64
	Lines      []TaxLine
}

// Allocation is the part of a payment attributed to one tax line.
type Allocation struct {
	Line   TaxLine
	Amount int64
}

// Allocate returns the payment's share of each tax line. Lines that receive
// nothing are omitted, so an invoice without tax yields no allocations.
//
// The share of the whole payment is the rounded cumulative share minus what
// was allocated before. Payments that add up to the invoice total therefore
// allocate exactly TaxAmount, whatever the split.
func Allocate(in Input) ([]Allocation, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if in.TaxAmount == 0 {
		return nil, nil
	}

	var allocatedBefore, capacity int64
	for _, line := range in.Lines {
		allocatedBefore += line.Allocated
		capacity += line.remaining()
	}

	target := money.MulDivRoundHalfEven(in.TaxAmount, in.PaidBefore+in.Amount, in.Total)
	share := target - allocatedBefore
	if share < 0 {
		share = 0
	}
	if share > capacity {
		share = capacity
	}

	amounts := make([]int64, len(in.Lines))
	var provisional int64
	for i, line := range in.Lines {
		amounts[i] = min(money.MulDivFloor(line.Amount, in.Amount, in.Total), line.remaining())
		provisional += amounts[i]
	}

	remainder := share - provisional
	for remainder > 0 {
		moved := false
		for i, line := range in.Lines {
			if remainder == 0 {
				break
			}
			if amounts[i] < line.remaining() {
				amounts[i]++
				remainder--
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	for remainder < 0 {
		moved := false
		for i := len(in.Lines) - 1; i >= 0; i-- {
			if remainder == 0 {
				break
			}
			if amounts[i] > 0 {
				amounts[i]--
				remainder++
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	out := make([]Allocation, 0, len(in.Lines))
	for i, line := range in.Lines {
		if amounts[i] == 0 {
			continue
		}
		out = append(out, Allocation{Line: line, Amount: amounts[i]})
	}
	return out, nil
}

// Sum adds up allocated amounts.
func Sum(allocations []Allocation) int64 {
	var total int64
	for _, a := range allocations {
		total += a.Amount
	}
	return total
}

func validate(in Input) error {
	if in.Total <= 0 || in.Amount <= 0 || in.PaidBefore < 0 || in.TaxAmount < 0 {
		return ErrInvalidInput
	}
	if in.TaxAmount > in.Total || in.Amount > in.Total-in.PaidBefore {
		return ErrInvalidInput
	}

	var sum int64
	for _, line := range in.Lines {
		if line.Amount < 0 || line.Allocated < 0 || line.Allocated > line.Amount {
			return ErrInvalidInput
		}
		sum += line.Amount
	}
	if sum != in.TaxAmount {
		return ErrInvalidInput
	}
	return nil
}
