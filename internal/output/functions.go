package output

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ETALimit is the point past which an ETA is shown as "n/a" (30 days).
const ETALimit = 2592000

// FormatBytes renders a size with binary units, e.g. "1.5 MiB".
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 || math.IsNaN(bytesPerSecond) || math.IsInf(bytesPerSecond, 0) {
		bytesPerSecond = 0
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

// FormatETA renders whole seconds as H:MM:SS, with a day prefix past 24h.
func FormatETA(seconds float64) string {
	if math.IsNaN(seconds) || seconds >= ETALimit {
		return "n/a"
	}
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	days := total / 86400
	rest := total % 86400
	clock := fmt.Sprintf("%d:%02d:%02d", rest/3600, rest%3600/60, rest%60)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
