// Package format renders portal values for terminal output.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/dustin/go-humanize"
)

// Missing stands in for an absent value.
const Missing = "—"

// DateLayout is how timestamps are shown.
const DateLayout = "02/01/2006 15:04:05"

// Date renders a server timestamp in local time.
func Date(ts string) string {
	if ts == "" {
		return Missing
	}

	t, err := models.ParseTimestamp(ts)
	if err != nil {
		return ts
	}

	return t.Local().Format(DateLayout)
}

// OptionalDate renders a timestamp that may be absent.
func OptionalDate(ts *string) string {
	if ts == nil {
		return Missing
	}

	return Date(*ts)
}

// Ago renders a timestamp relative to now, e.g. "3 minutes ago".
func Ago(ts string, now time.Time) string {
	t, err := models.ParseTimestamp(ts)
	if err != nil {
		return Missing
	}

	return humanize.RelTime(t, now, "ago", "from now")
}

// Duration renders a finished run length: "12.3s" below a minute, else "4m 5s".
func Duration(seconds float64) string {
	if seconds <= 0 {
		return Missing
	}

	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	minutes := int(seconds / 60)
	rest := int(math.Round(math.Mod(seconds, 60)))

	return fmt.Sprintf("%dm %ds", minutes, rest)
}

// Elapsed renders a live counter as MM:SS, or HH:MM:SS past an hour.
func Elapsed(seconds *int64) string {
	if seconds == nil {
		return Missing
	}

	s := max(*seconds, 0)
	hours, minutes, secs := s/3600, (s%3600)/60, s%60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// Bytes renders a file size in binary units.
func Bytes(size int64) string {
	if size <= 0 {
		return "0 B"
	}

	return humanize.IBytes(uint64(size))
}

// Count renders an integer with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Status renders an execution status with a glyph.
func Status(status models.ExecutionStatus) string {
	switch status {
	case models.ExecutionStatusQueued:
		return "◷ queued"
	case models.ExecutionStatusRunning:
		return "▶ running"
	case models.ExecutionStatusCompleted:
		return "✔ completed"
	case models.ExecutionStatusFailed:
		return "✘ failed"
	case models.ExecutionStatusCancelled:
		return "■ cancelled"
	case models.ExecutionStatusInterrupted:
		return "⚠ interrupted"
	default:
		return string(status)
	}
}
