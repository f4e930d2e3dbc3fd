package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	data := map[string]any{
		"amount":   "100.00",
		"due_date": "2025-01-01",
		"count":    int64(3),
		"ratio":    0.5,
		"flag":     true,
	}

	require.Equal(t, "Invoice 100.00 due 2025-01-01",
		renderTemplate("Invoice {{amount}} due {{due_date}}", data))
	require.Equal(t, "3 items, ratio 0.5, flag true",
		renderTemplate("{{count}} items, ratio {{ratio}}, flag {{flag}}", data))

	// Unknown placeholders stay verbatim, whitespace inside braces is fine.
	require.Equal(t, "Hi {{name}}, amount 100.00",
		renderTemplate("Hi {{name}}, amount {{ amount }}", data))

	// No placeholders and malformed braces pass through untouched.
	require.Equal(t, "plain text", renderTemplate("plain text", data))
	require.Equal(t, "broken {{amount", renderTemplate("broken {{amount", data))
}

func TestInQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
	}
	window := map[string]any{"quiet_start": "22:00", "quiet_end": "06:00"}

	require.True(t, inQuietHours(window, at(23, 0)))
	require.True(t, inQuietHours(window, at(2, 30)))
	require.True(t, inQuietHours(window, at(22, 0)))
	require.False(t, inQuietHours(window, at(6, 0)))
	require.False(t, inQuietHours(window, at(12, 0)))

	daytime := map[string]any{"quiet_start": "13:00", "quiet_end": "15:00"}
	require.True(t, inQuietHours(daytime, at(14, 0)))
	require.False(t, inQuietHours(daytime, at(15, 0)))

	require.False(t, inQuietHours(map[string]any{}, at(23, 0)))
	require.False(t, inQuietHours(map[string]any{"quiet_start": "25:00", "quiet_end": "06:00"}, at(23, 0)))
	require.False(t, inQuietHours(map[string]any{"quiet_start": "22:00", "quiet_end": "22:00"}, at(23, 0)))
}
