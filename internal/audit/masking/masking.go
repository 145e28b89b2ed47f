package masking

import "strings"

const maskToken = "****"

// MaskSecret hides all but the last four characters of a reference such as a
// gateway transaction id. Values of four characters or fewer are fully hidden.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskJSON returns a copy of a gateway payload with every string leaf masked.
// Numbers and booleans are left alone so amounts and flags stay readable.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(value)
	}
	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, len(cast))
		for i, item := range cast {
			out[i] = maskValue(item)
		}
		return out
	default:
		return value
	}
}
