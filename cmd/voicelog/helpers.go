package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voicelog/internal/calendar"
)

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}

// dateFlag parses a YYYY-MM-DD flag value, defaulting to def when empty.
func dateFlag(name, raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", name, raw)
	}
	return d, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
