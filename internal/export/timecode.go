package export

import (
	"fmt"
	"math"
)

// split breaks seconds into whole hours, minutes, seconds and milliseconds.
// Every component is truncated; negative input is treated as zero.
func split(seconds float64) (h, m, s, ms int64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	ms = int64(math.Floor(math.Mod(seconds, 1) * 1000))
	return total / 3600, (total % 3600) / 60, total % 60, ms
}

// FormatSRTTime renders seconds as HH:MM:SS,mmm.
func FormatSRTTime(seconds float64) string {
	h, m, s, ms := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTime renders seconds as MM:SS.mmm. Minutes are not wrapped into
// hours and may exceed 59.
func FormatVTTTime(seconds float64) string {
	h, m, s, ms := split(seconds)
	return fmt.Sprintf("%02d:%02d.%03d", h*60+m, s, ms)
}

// FormatClock renders seconds as MM:SS for plain-text timestamps.
func FormatClock(seconds float64) string {
	h, m, s, _ := split(seconds)
	return fmt.Sprintf("%02d:%02d", h*60+m, s)
}
