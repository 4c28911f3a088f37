// Package timefmt renders remaining ban time for player-facing messages.
package timefmt

import (
	"fmt"
	"time"
)

// Compact returns a short "2h 30m" style string, used in proxy denial titles.
// Durations under a minute render as "0m" so a banned player never sees an
// empty countdown.
func Compact(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	minutes := int64(d%time.Hour) / int64(time.Minute)

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Display returns a long-form "2 hours, 30 minutes" string for chat messages.
func Display(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	minutes := int64(d%time.Hour) / int64(time.Minute)

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%s, %s", plural(hours, "hour"), plural(minutes, "minute"))
	case hours > 0:
		return plural(hours, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
