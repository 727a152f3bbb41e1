package stats

import (
	"time"

	"github.com/quic-go/dcbench/internal/protocol"
)

// A RollingRate averages a byte count over fixed windows.
// The published value only changes at window boundaries.
type RollingRate struct {
	window time.Duration

	sum     protocol.ByteCount
	elapsed time.Duration

	rate      float64 // bytes/s
	published bool
}

func NewRollingRate(window time.Duration) *RollingRate {
	return &RollingRate{window: window}
}

func (r *RollingRate) Add(n protocol.ByteCount) { r.sum += n }

// Advance moves the window forward.
// It returns true if a new rate was published.
func (r *RollingRate) Advance(elapsed time.Duration) bool {
	if elapsed > 0 {
		r.elapsed += elapsed
	}
	if r.elapsed < r.window || r.elapsed <= 0 {
		return false
	}
	r.rate = float64(r.sum) / r.elapsed.Seconds()
	r.published = true
	r.sum = 0
	r.elapsed = 0
	return true
}

// Rate returns the rate published at the last window boundary, in bytes/s.
func (r *RollingRate) Rate() float64 { return r.rate }

// Published says if at least one window has completed.
func (r *RollingRate) Published() bool { return r.published }

// Pending returns the bytes accumulated in the current window.
func (r *RollingRate) Pending() protocol.ByteCount { return r.sum }

func (r *RollingRate) Reset() {
	*r = RollingRate{window: r.window}
}
