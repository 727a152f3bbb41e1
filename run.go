package dcbench

import (
	"context"
	"time"
)

// DefaultTickInterval is the tick interval used by Run if none is given.
// It matches a 60 Hz frame rate.
const DefaultTickInterval = 16 * time.Millisecond

// Run ticks m at the given interval until ctx is canceled, then closes m.
// The first tick happens immediately.
func Run(ctx context.Context, m Machine, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return m.Close()
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}
