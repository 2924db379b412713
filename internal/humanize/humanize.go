// Package humanize renders byte counts in human-readable form.
package humanize

import (
	"fmt"
	"math"
)

var units = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// Bytes renders n as e.g. "12.3 MB". Negative values are clamped to 0.
func Bytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}

	f := float64(n)
	exp := int(math.Log(f) / math.Log(1024))
	if exp >= len(units) {
		exp = len(units) - 1
	}
	if exp <= 0 {
		return fmt.Sprintf("%d B", n)
	}

	value := f / math.Pow(1024, float64(exp))
	return fmt.Sprintf("%.1f %s", value, units[exp])
}

// Rate renders a bytes-per-second value as e.g. "4.2 MB/s".
func Rate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return Bytes(int64(bytesPerSec)) + "/s"
}
