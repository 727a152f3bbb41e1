// Package monotime provides a monotonic clock.
// Values are only meaningful within one process.
package monotime

import "time"

// The zero Time is reserved for "not set", so the clock is offset by one
// nanosecond from the process start.
var start = time.Now().Add(-time.Nanosecond)

// A Time is a point in time on the monotonic clock, in nanoseconds.
type Time int64

// Now returns the current time.
func Now() Time {
	return Time(time.Since(start))
}

// Since returns the time elapsed since t.
func Since(t Time) time.Duration {
	return Now().Sub(t)
}

// Until returns the duration until t.
func Until(t Time) time.Duration {
	return t.Sub(Now())
}

// FromTime converts a time.Time. The zero time.Time maps to the zero Time.
func FromTime(t time.Time) Time {
	if t.IsZero() {
		return 0
	}
	return Time(t.Sub(start))
}

// ToTime converts t to a time.Time. The zero Time maps to the zero time.Time.
func (t Time) ToTime() time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return start.Add(time.Duration(t))
}

func (t Time) IsZero() bool { return t == 0 }

func (t Time) Add(d time.Duration) Time { return t + Time(d) }

func (t Time) Sub(u Time) time.Duration { return time.Duration(t - u) }

func (t Time) Before(u Time) bool { return t < u }

func (t Time) After(u Time) bool { return t > u }

func (t Time) Equal(u Time) bool { return t == u }
