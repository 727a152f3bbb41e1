package utils

import (
	"math"
	"strconv"
)

// FormatRate formats a rate in bytes/s for display.
// Rates of one KByte/s or more are rounded to whole KBytes.
func FormatRate(bytesPerSecond float64) string {
	return formatBytes(bytesPerSecond, " Byte/s", " KByte/s")
}

// FormatBytes formats a byte count for display.
func FormatBytes(n int64) string {
	return formatBytes(float64(n), " Bytes", " KBytes")
}

func formatBytes(n float64, unit, kunit string) string {
	n = math.Trunc(n)
	if n < 1024 {
		return strconv.FormatInt(int64(n), 10) + unit
	}
	return strconv.FormatInt(int64(math.RoundToEven(n/1024)), 10) + kunit
}
