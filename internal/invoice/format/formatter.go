package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}-{SEQ5}"

var (
	ErrEmptyTemplate   = errors.New("invoice_number_template_empty")
	ErrInvalidSequence = errors.New("invalid_invoice_sequence")
	ErrUnresolvedToken = errors.New("invoice_number_unresolved_token")
)

// SequencePeriod is the numbering period a template implies for an issue
// date: the day, month or year it encodes, or "" when the number carries no
// date and the sequence never restarts.
func SequencePeriod(template string, issuedAt time.Time) string {
	hasYear := strings.Contains(template, "{YYYY}") || strings.Contains(template, "{YY}")
	switch {
	case hasYear && strings.Contains(template, "{MM}") && strings.Contains(template, "{DD}"):
		return issuedAt.Format("20060102")
	case hasYear && strings.Contains(template, "{MM}"):
		return issuedAt.Format("200601")
	case hasYear:
		return issuedAt.Format("2006")
	default:
		return ""
	}
}

// FormatInvoiceNumber renders a template such as "INV-{YYYY}{MM}-{SEQ5}"
// for an issue date and a sequence number. Supported tokens are {YYYY},
// {YY}, {MM}, {DD}, {SEQ} and {SEQn} (zero padded to n digits).
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", ErrEmptyTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, seq)
	}

	out := strings.NewReplacer(
		"{YYYY}", issuedAt.Format("2006"),
		"{YY}", issuedAt.Format("06"),
		"{MM}", issuedAt.Format("01"),
		"{DD}", issuedAt.Format("02"),
		"{SEQ}", strconv.FormatInt(seq, 10),
	).Replace(template)

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		width, err := strconv.Atoi(seqPadRe.FindStringSubmatch(m)[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedToken, out)
	}
	return out, nil
}
