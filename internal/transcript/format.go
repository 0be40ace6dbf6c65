package transcript

import (
	"fmt"
	"math"
	"time"
)

// FormatFileSize renders a byte count as "512 B", "1.5 KB", "1.0 MB", ...
func FormatFileSize(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", bytes, units[0])
	}
	return fmt.Sprintf("%.1f %s", size, units[unit])
}

// FormatDuration renders seconds as "45s", "2m 5s" or "1h 2m 3s".
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", int(math.Round(seconds)))
	}
	minutes := int(seconds / 60)
	rem := int(math.Round(math.Mod(seconds, 60)))
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, rem)
	}
	return fmt.Sprintf("%dh %dm %ds", minutes/60, minutes%60, rem)
}

// EstimateRemaining extrapolates the time left for a job from its progress
// percentage and the time it started. Returns "Calculating..." until there
// is progress to extrapolate from.
func EstimateRemaining(progress float64, startedAt, now time.Time) string {
	if progress <= 0 {
		return "Calculating..."
	}
	if progress >= 100 {
		return "0s remaining"
	}
	elapsed := now.Sub(startedAt)
	remaining := time.Duration(float64(elapsed) * (100 - progress) / progress)

	switch {
	case remaining < time.Minute:
		return fmt.Sprintf("%ds remaining", int(math.Round(remaining.Seconds())))
	case remaining < time.Hour:
		return fmt.Sprintf("%dm remaining", int(math.Round(remaining.Minutes())))
	default:
		return fmt.Sprintf("%dh remaining", int(math.Round(remaining.Hours())))
	}
}
