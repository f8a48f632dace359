// Human-readable formatting for transfer metrics shown in operation details.
package util

import (
	"fmt"
	"time"
)

// FormatBytes renders a byte count as "12.3 MB" style text.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed renders a bytes/sec rate.
func FormatSpeed(bps float64) string {
	if bps <= 0 {
		return "-"
	}
	return FormatBytes(int64(bps)) + "/s"
}

// FormatETA renders a remaining-time estimate the way the status table shows
// it: minutes for anything over a minute, seconds below that.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

// TransferDetails builds the standard progress string: "42% (5.0/12.0 MB)"
// plus an ETA suffix when the speed is known.
func TransferDetails(done, total int64, speed float64) string {
	if total <= 0 {
		return FormatBytes(done)
	}
	percent := int(float64(done) / float64(total) * 100)
	s := fmt.Sprintf("%d%% (%s/%s)", percent, FormatBytes(done), FormatBytes(total))
	if speed > 0 {
		remaining := time.Duration(float64(total-done)/speed) * time.Second
		s += " - ETA: " + FormatETA(remaining)
	}
	return s
}
