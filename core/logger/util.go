package logger

import (
	"strings"
	"time"
)

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// MaskPhone keeps the first two and the last four characters of a phone
// number. Six characters or fewer are masked completely.
func MaskPhone(phone string) string {
	r := []rune(strings.TrimSpace(phone))
	if n := len(r); n > 6 {
		return string(r[:2]) + strings.Repeat("*", n-6) + string(r[n-4:])
	}
	return strings.Repeat("*", len(r))
}
