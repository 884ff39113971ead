package leaderboard

import (
	"fmt"
	"time"
)

// NoRecord is the rendered time of a player without an entry.
const NoRecord = "0.00"

// UnknownName replaces a display name the directory could not resolve in time.
const UnknownName = "unknown"

const dateLayout = "2006-01-02"

// FormatRecord renders milliseconds as seconds with two decimals: 45200 -> "45.20".
func FormatRecord(ms int64) string {
	return fmt.Sprintf("%.2f", float64(ms)/1000)
}

// FormatDate renders a play date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
