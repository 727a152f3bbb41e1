package stats

import (
	"time"

	"github.com/quic-go/dcbench/internal/protocol"
)

// Rates holds the last published averages, in bytes/s.
type Rates struct {
	Sent      float64
	Confirmed float64
	Received  float64
}

// The Aggregator keeps three independent rolling rates.
// Confirmed bytes are attributed the size of the message that was acknowledged,
// not the size of the acknowledgement.
type Aggregator struct {
	sent      RollingRate
	confirmed RollingRate
	received  RollingRate
}

func NewAggregator(window time.Duration) *Aggregator {
	return &Aggregator{
		sent:      RollingRate{window: window},
		confirmed: RollingRate{window: window},
		received:  RollingRate{window: window},
	}
}

func (a *Aggregator) AddSent(n protocol.ByteCount)      { a.sent.Add(n) }
func (a *Aggregator) AddConfirmed(n protocol.ByteCount) { a.confirmed.Add(n) }
func (a *Aggregator) AddReceived(n protocol.ByteCount)  { a.received.Add(n) }

// Advance advances all windows. They share a clock, so they publish together.
func (a *Aggregator) Advance(elapsed time.Duration) bool {
	published := a.sent.Advance(elapsed)
	a.confirmed.Advance(elapsed)
	a.received.Advance(elapsed)
	return published
}

func (a *Aggregator) Rates() Rates {
	return Rates{
		Sent:      a.sent.Rate(),
		Confirmed: a.confirmed.Rate(),
		Received:  a.received.Rate(),
	}
}

func (a *Aggregator) Reset() {
	a.sent.Reset()
	a.confirmed.Reset()
	a.received.Reset()
}
