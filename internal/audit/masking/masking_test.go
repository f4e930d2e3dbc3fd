package masking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	require.Equal(t, "", MaskSecret("  "))
	require.Equal(t, "****", MaskSecret("abc"))
	require.Equal(t, "****3344", MaskSecret("+62811223344"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"amount":       "100.00",
		"parent_phone": "+62811223344",
		"api_token":    "tok_1234567890",
		"attempts":     3,
		"student": map[string]any{
			"name":        "Budi",
			"national_id": "3201019900010001",
		},
	})

	require.Equal(t, "100.00", out["amount"])
	require.Equal(t, "****3344", out["parent_phone"])
	require.Equal(t, "****7890", out["api_token"])
	require.Equal(t, 3, out["attempts"])

	student := out["student"].(map[string]any)
	require.Equal(t, "Budi", student["name"])
	require.Equal(t, "****0001", student["national_id"])
}

func TestMaskSensitiveNonStringValues(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"tokens": []any{"tok_abcdef", 42},
	})
	masked := out["tokens"].([]any)
	require.Equal(t, "****cdef", masked[0])
	require.Equal(t, "****", masked[1])

	require.Nil(t, MaskSensitive(nil))
}
