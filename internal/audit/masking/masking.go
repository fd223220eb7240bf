package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values can carry card, check or
// account digits entered by staff.
var SensitiveKeys = []string{"reference_number", "account_number", "card_last4"}

// MaskReference hides all but the last four characters of a reference.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= 4 {
		return maskToken
	}
	return maskToken + string(runes[len(runes)-4:])
}

// MaskMetadata returns a copy of input with the sensitive string values
// masked. Nested maps are walked; other values are copied as-is.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cast := value.(type) {
		case string:
			if isSensitive(key) {
				out[key] = MaskReference(cast)
				continue
			}
			out[key] = cast
		case map[string]any:
			out[key] = MaskMetadata(cast)
		default:
			out[key] = value
		}
	}
	return out
}

func isSensitive(key string) bool {
	for _, candidate := range SensitiveKeys {
		if strings.EqualFold(candidate, key) {
			return true
		}
	}
	return false
}
