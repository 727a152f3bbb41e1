package congestion

import (
	"time"

	"github.com/quic-go/dcbench/internal/protocol"
)

// A Channel is the outbound side of a transport, as seen by the Pacer.
type Channel interface {
	// BufferedAmount returns the number of bytes queued but not yet written.
	BufferedAmount() int
	// SendMessage sends a single message.
	// The return value is the transport's own verdict whether it accepted the message.
	SendMessage() bool
}

// The Pacer converts a target rate into a number of messages per tick.
// It is open loop: it only backs off when the local send buffer fills up.
type Pacer struct {
	credit time.Duration

	paused     bool
	bufferFull uint64
}

// Interval returns the time budget consumed by a single message.
// It is rounded up to a whole nanosecond, so the pacer never exceeds the rate.
// It returns 0 if nothing can be sent at the given rate.
func Interval(rate protocol.ByteCount, messageSize int) time.Duration {
	if rate <= 0 || messageSize <= 0 {
		return 0
	}
	n := int64(time.Second) * int64(messageSize)
	return time.Duration((n + int64(rate) - 1) / int64(rate))
}

// Tick accumulates elapsed time as credit and sends as many messages as the credit allows.
// It returns the number of messages sent.
// Rate, message size and buffer limit are passed on every call, so a changed rate takes effect immediately.
func (p *Pacer) Tick(elapsed time.Duration, rate protocol.ByteCount, messageSize, maxBuffered int, ch Channel) int {
	p.paused = false
	interval := Interval(rate, messageSize)
	if interval <= 0 {
		p.credit = 0
		return 0
	}
	if elapsed > 0 {
		p.credit += elapsed
	}

	var sent int
	for p.credit > interval {
		if ch.BufferedAmount()+messageSize >= maxBuffered || !ch.SendMessage() {
			p.pause()
			break
		}
		p.credit -= interval
		sent++
	}
	return sent
}

func (p *Pacer) pause() {
	p.paused = true
	p.bufferFull++
	// don't burst once the buffer drains
	p.credit = 0
}

// Paused says if the last tick stopped because of backpressure.
func (p *Pacer) Paused() bool { return p.paused }

// BufferFullCount is the number of ticks that ended in a pause.
func (p *Pacer) BufferFullCount() uint64 { return p.bufferFull }

func (p *Pacer) Credit() time.Duration { return p.credit }

// Reset returns the pacer to its initial state.
func (p *Pacer) Reset() {
	*p = Pacer{}
}
