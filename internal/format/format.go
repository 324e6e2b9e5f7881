// Package format renders voice note timings and sizes for the terminal.
package format

import (
	"fmt"
	"math"
	"time"
)

// Elapsed formats a recording timer value as M:SS, the way voice message
// composers display it.
func Elapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Seconds formats a whole-second note duration.
// Examples: "7s", "2m", "1m05s"
func Seconds(s float64) string {
	if math.IsInf(s, 0) || math.IsNaN(s) {
		return "?"
	}
	d := time.Duration(s) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	rest := (d % time.Minute) / time.Second
	if rest == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%dm%02ds", d/time.Minute, rest)
}

// Size formats a size in bytes for human display with one decimal above
// a kilobyte.
func Size(bytes int) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
