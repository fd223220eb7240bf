package money

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrCurrencyMismatch = errors.New("currency_mismatch")
	ErrUnknownCurrency  = errors.New("unknown_currency")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrOverflow         = errors.New("amount_overflow")
)

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// Money is an amount in minor units of a single currency.
// Values are immutable; every operation returns a new Money.
type Money struct {
	amount   int64
	currency string
}

// New builds Money from a minor-unit amount.
func New(minor int64, currency string) (Money, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: minor, currency: code}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) (Money, error) {
	return New(0, currency)
}

// Parse reads a decimal string such as "103.50" into minor units.
// Inputs with more fractional digits than the currency allows are rejected
// instead of being rounded.
func Parse(s string, currency string) (Money, error) {
	code, exp, err := lookup(currency)
	if err != nil {
		return Money{}, err
	}

	raw := strings.TrimSpace(s)
	if !decimalPattern.MatchString(raw) {
		return Money{}, ErrInvalidAmount
	}
	if idx := strings.IndexByte(raw, '.'); idx >= 0 && int32(len(raw)-idx-1) > exp {
		return Money{}, ErrInvalidAmount
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	minor, err := toMinor(value, exp)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: minor, currency: code}, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func toMinor(value decimal.Decimal, exp int32) (int64, error) {
	shifted := value.Shift(exp)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, ErrOverflow
	}
	return shifted.IntPart(), nil
}

func (m Money) Amount() int64    { return m.amount }
func (m Money) Currency() string { return m.currency }

func (m Money) IsZero() bool     { return m.amount == 0 }
func (m Money) IsPositive() bool { return m.amount > 0 }
func (m Money) IsNegative() bool { return m.amount < 0 }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.amount, -minorUnits[m.currency])
}

// String renders the canonical, locale-independent decimal form ("1234.50").
func (m Money) String() string {
	return m.Decimal().StringFixed(minorUnits[m.currency])
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	sum := m.amount + other.amount
	if (sum > m.amount) != (other.amount > 0) {
		return Money{}, ErrOverflow
	}
	return Money{amount: sum, currency: m.currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	diff := m.amount - other.amount
	if (diff < m.amount) != (other.amount > 0) {
		return Money{}, ErrOverflow
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// MulQuantity multiplies by a non-negative integer quantity.
func (m Money) MulQuantity(quantity int64) (Money, error) {
	if quantity < 0 {
		return Money{}, ErrInvalidQuantity
	}
	if quantity == 0 || m.amount == 0 {
		return Money{amount: 0, currency: m.currency}, nil
	}
	product := m.amount * quantity
	if product/quantity != m.amount {
		return Money{}, ErrOverflow
	}
	return Money{amount: product, currency: m.currency}, nil
}

// Cmp returns -1, 0 or 1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount == other.amount
}

func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c > 0, err
}

func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c < 0, err
}

type jsonMoney struct {
	Amount      string `json:"amount"`
	AmountMinor *int64 `json:"amount_minor,omitempty"`
	Currency    string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	minor := m.amount
	return json.Marshal(jsonMoney{
		Amount:      m.String(),
		AmountMinor: &minor,
		Currency:    m.currency,
	})
}

// UnmarshalJSON accepts "amount", "amount_minor" or both; when both are
// present they must describe the same value.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw jsonMoney
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw.Amount) == "" && raw.AmountMinor == nil {
		return ErrInvalidAmount
	}

	var parsed Money
	var err error
	if raw.AmountMinor != nil {
		parsed, err = New(*raw.AmountMinor, raw.Currency)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(raw.Amount) != "" {
		fromString, err := Parse(raw.Amount, raw.Currency)
		if err != nil {
			return err
		}
		if raw.AmountMinor != nil && !fromString.Equal(parsed) {
			return ErrInvalidAmount
		}
		parsed = fromString
	}

	*m = parsed
	return nil
}
