package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	got, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, 42)
	require.NoError(t, err)
	assert.Equal(t, "INV-202603-00042", got)

	got, err = FormatInvoiceNumber("{YY}{MM}{DD}/{SEQ}", issued, 7)
	require.NoError(t, err)
	assert.Equal(t, "260307/7", got)

	got, err = FormatInvoiceNumber("S-{SEQ3}", issued, 12345)
	require.NoError(t, err)
	assert.Equal(t, "S-12345", got)
}

func TestFormatInvoiceNumberErrors(t *testing.T) {
	issued := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	_, err := FormatInvoiceNumber("", issued, 1)
	assert.ErrorIs(t, err, ErrEmptyTemplate)

	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, issued, 0)
	assert.ErrorIs(t, err, ErrInvalidSequence)

	_, err = FormatInvoiceNumber("INV-{QUARTER}-{SEQ}", issued, 1)
	assert.ErrorIs(t, err, ErrUnresolvedToken)
}

func TestSequencePeriod(t *testing.T) {
	issued := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "202603", SequencePeriod(DefaultInvoiceNumberTemplate, issued))
	assert.Equal(t, "20260307", SequencePeriod("{YY}{MM}{DD}-{SEQ}", issued))
	assert.Equal(t, "2026", SequencePeriod("INV-{YYYY}-{SEQ4}", issued))
	assert.Equal(t, "", SequencePeriod("INV-{SEQ6}", issued))
	assert.Equal(t, "", SequencePeriod("INV-{MM}-{SEQ6}", issued))
}
