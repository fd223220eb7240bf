package money

import "strings"

// minorUnits maps ISO 4217 codes to the number of fractional digits
// a studio invoice can carry in that currency.
var minorUnits = map[string]int32{
	"AUD": 2,
	"BHD": 3,
	"CAD": 2,
	"CHF": 2,
	"EUR": 2,
	"GBP": 2,
	"IDR": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"NZD": 2,
	"SGD": 2,
	"USD": 2,
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := minorUnits[normalized]; !ok {
		return "", ErrUnknownCurrency
	}
	return normalized, nil
}

func lookup(code string) (string, int32, error) {
	normalized, err := NormalizeCurrency(code)
	if err != nil {
		return "", 0, err
	}
	return normalized, minorUnits[normalized], nil
}
