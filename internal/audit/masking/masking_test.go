package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskReference(t *testing.T) {
	assert.Equal(t, "", MaskReference("  "))
	assert.Equal(t, "****", MaskReference("1234"))
	assert.Equal(t, "****6789", MaskReference("CHK-000123456789"))
}

func TestMaskMetadata(t *testing.T) {
	in := map[string]any{
		"reference_number": "ACH-99887766",
		"amount_minor":     int64(5000),
		"method":           "ach",
		"nested":           map[string]any{"account_number": "1234567890"},
		" ":                "dropped",
	}

	out := MaskMetadata(in)
	assert.Equal(t, "****7766", out["reference_number"])
	assert.Equal(t, int64(5000), out["amount_minor"])
	assert.Equal(t, "ach", out["method"])
	assert.Equal(t, map[string]any{"account_number": "****7890"}, out["nested"])
	assert.NotContains(t, out, " ")
	assert.Equal(t, "ACH-99887766", in["reference_number"])
}
