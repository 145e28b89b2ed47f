package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "****6789", MaskSecret("txn_0123456789"))
}

func TestMaskJSONKeepsNonStrings(t *testing.T) {
	out := MaskJSON(map[string]any{
		"id":      "ch_1234567890",
		"amount":  16900,
		"paid":    true,
		"nested":  map[string]any{"card": "4242424242424242"},
		"history": []any{"abcdefgh"},
		" ":       "dropped",
	})

	assert.Equal(t, "****7890", out["id"])
	assert.Equal(t, 16900, out["amount"])
	assert.Equal(t, true, out["paid"])
	assert.Equal(t, map[string]any{"card": "****4242"}, out["nested"])
	assert.Equal(t, []any{"****efgh"}, out["history"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskJSON(nil))
}
