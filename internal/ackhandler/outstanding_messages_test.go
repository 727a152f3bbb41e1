package ackhandler

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutstandingMessagesRecordAndAcknowledge(t *testing.T) {
	h := NewOutstandingMessages()
	require.True(t, h.Record(1, 100))
	require.True(t, h.Record(2, 110))
	require.True(t, h.Record(3, 120))
	require.Equal(t, 3, h.Len())

	require.True(t, h.Acknowledge(2))
	require.False(t, h.Acknowledge(2))
	require.False(t, h.Acknowledge(42))
	require.Equal(t, 2, h.Len())
	_, ok := h.SentAt(2)
	require.False(t, ok)
	sentAt, ok := h.SentAt(3)
	require.True(t, ok)
	require.Equal(t, uint32(120), sentAt)
}

func TestOutstandingMessagesDuplicateSequence(t *testing.T) {
	h := NewOutstandingMessages()
	require.True(t, h.Record(5, 100))
	// equality ignores the timestamp
	require.False(t, h.Record(5, 200))
	require.Equal(t, 1, h.Len())
	sentAt, ok := h.SentAt(5)
	require.True(t, ok)
	require.Equal(t, uint32(200), sentAt)
	require.True(t, h.Acknowledge(5))
	require.Zero(t, h.Len())
}

func TestOutstandingMessagesTimeoutBoundary(t *testing.T) {
	const timeout = 30000
	const t0 = 1234

	h := NewOutstandingMessages()
	h.Record(5, t0)
	require.Zero(t, h.SweepTimeouts(t0+timeout-1, timeout, nil))
	require.Equal(t, 1, h.Len())
	require.Zero(t, h.SweepTimeouts(t0+timeout, timeout, nil))
	require.Equal(t, 1, h.Len())

	var lost []uint32
	require.Equal(t, 1, h.SweepTimeouts(t0+timeout+1, timeout, func(seq, sentAt uint32) {
		require.Equal(t, uint32(t0), sentAt)
		lost = append(lost, seq)
	}))
	require.Equal(t, []uint32{5}, lost)
	require.Zero(t, h.Len())
	// a late acknowledgement is not recognized any more
	require.False(t, h.Acknowledge(5))
}

func TestOutstandingMessagesTimeoutWrapsAround(t *testing.T) {
	h := NewOutstandingMessages()
	h.Record(1, math.MaxUint32-10)
	require.Zero(t, h.SweepTimeouts(5, 100, nil))
	require.Equal(t, 1, h.SweepTimeouts(100, 100, nil))
}

func TestOutstandingMessagesSweepOnlyRemovesOldEntries(t *testing.T) {
	h := NewOutstandingMessages()
	for i := uint32(1); i <= 10; i++ {
		h.Record(i, i*100)
	}
	// entries sent at 100..500 are older than 500ms at 1001
	require.Equal(t, 5, h.SweepTimeouts(1001, 500, nil))
	for i := uint32(1); i <= 10; i++ {
		_, ok := h.SentAt(i)
		require.Equal(t, i > 5, ok, "sequence %d", i)
	}
}

func TestOutstandingMessagesMembership(t *testing.T) {
	const timeout = 50
	r := rand.New(rand.NewPCG(13, 37))
	h := NewOutstandingMessages()

	expected := make(map[uint32]uint32)
	var now, next uint32
	for i := 0; i < 5000; i++ {
		now += uint32(r.IntN(3))
		switch r.IntN(3) {
		case 0:
			next++
			h.Record(next, now)
			expected[next] = now
		case 1:
			if next == 0 {
				continue
			}
			seq := 1 + uint32(r.IntN(int(next)))
			_, ok := expected[seq]
			delete(expected, seq)
			require.Equal(t, ok, h.Acknowledge(seq))
		case 2:
			var n int
			for seq, sentAt := range expected {
				if now-sentAt > timeout {
					delete(expected, seq)
					n++
				}
			}
			require.Equal(t, n, h.SweepTimeouts(now, timeout, nil))
		}
		require.Equal(t, len(expected), h.Len())
	}
	for seq, sentAt := range expected {
		got, ok := h.SentAt(seq)
		require.True(t, ok)
		require.Equal(t, sentAt, got)
	}
}

func TestOutstandingMessagesClear(t *testing.T) {
	h := NewOutstandingMessages()
	h.Record(1, 1)
	h.Record(2, 2)
	h.Clear()
	require.Zero(t, h.Len())
	require.False(t, h.Acknowledge(1))
}
