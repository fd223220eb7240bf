package money

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

type separators struct {
	group   string
	decimal string
}

// localeFormat resolves the printer and separators for a locale. Locales
// whose number system is not Latin digits fall back to English so that
// ParseFormatted can always read back what Format wrote.
func localeFormat(tag language.Tag) (*message.Printer, separators) {
	p := message.NewPrinter(tag)
	grouped := p.Sprint(number.Decimal(1234567))
	fraction := p.Sprint(number.Decimal(1.5, number.Scale(1)))
	if !asciiDigits(grouped) || !asciiDigits(fraction) {
		p = message.NewPrinter(language.English)
		return p, separators{group: ",", decimal: "."}
	}
	sep := separators{group: firstNonDigitRun(grouped), decimal: firstNonDigitRun(fraction)}
	if sep.decimal == "" {
		sep.decimal = "."
	}
	return p, sep
}

// Format renders the amount for display in the given locale, e.g.
// "1,234.50" for en-US or "1.234,50" for de-DE.
func (m Money) Format(tag language.Tag) string {
	p, sep := localeFormat(tag)
	exp := minorUnits[m.currency]

	negative := m.amount < 0
	abs := uint64(m.amount)
	if negative {
		abs = uint64(-(m.amount + 1)) + 1
	}
	pow := uint64(1)
	for i := int32(0); i < exp; i++ {
		pow *= 10
	}

	out := p.Sprint(number.Decimal(abs / pow))
	if exp > 0 {
		out += sep.decimal + fmt.Sprintf("%0*d", exp, abs%pow)
	}
	if negative {
		out = "-" + out
	}
	return out
}

// ParseFormatted reverses Format for the same locale.
func ParseFormatted(s string, tag language.Tag, currency string) (Money, error) {
	_, sep := localeFormat(tag)
	raw := strings.TrimSpace(s)
	if sep.group != "" {
		raw = strings.ReplaceAll(raw, sep.group, "")
	}
	if sep.decimal != "." {
		if strings.Contains(raw, ".") {
			return Money{}, ErrInvalidAmount
		}
		raw = strings.Replace(raw, sep.decimal, ".", 1)
	}
	return Parse(raw, currency)
}

func asciiDigits(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func firstNonDigitRun(s string) string {
	start := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if start < 0 {
		return ""
	}
	end := strings.IndexFunc(s[start:], func(r rune) bool { return r >= '0' && r <= '9' })
	if end < 0 {
		return s[start:]
	}
	return s[start : start+end]
}
