package wire

import (
	"math"
	"testing"

	"github.com/quic-go/dcbench/internal/protocol"

	"github.com/stretchr/testify/require"
)

func TestMessageEncoding(t *testing.T) {
	b, err := Encode(0x01020304, 0x0a0b0c0d, protocol.MinMessageSize)
	require.NoError(t, err)
	// the wire layout is little endian
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x0d, 0x0c, 0x0b, 0x0a}, b)
	require.Equal(t, b, Message{Sequence: 0x01020304, Timestamp: 0x0a0b0c0d}.Append(nil))
}

func TestMessageRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		seq, ts uint32
		size    int
	}{
		{seq: 0, ts: 0, size: 8},
		{seq: 1, ts: 1337, size: 9},
		{seq: 42, ts: 100, size: 1024},
		{seq: math.MaxUint32, ts: math.MaxUint32, size: 1200},
	} {
		b, err := Encode(tc.seq, tc.ts, tc.size)
		require.NoError(t, err)
		require.Len(t, b, tc.size)
		m, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, Message{Sequence: tc.seq, Timestamp: tc.ts}, m)
	}
}

func TestMessageEncodingTooSmall(t *testing.T) {
	_, err := Encode(1, 2, protocol.MinMessageSize-1)
	require.Error(t, err)
}

func TestMessageDecodingTooShort(t *testing.T) {
	for i := 0; i < protocol.MinMessageSize; i++ {
		_, err := Decode(make([]byte, i))
		require.ErrorIs(t, err, ErrMalformedMessage)
	}
}

func TestMessageHeaderKeepsFiller(t *testing.T) {
	b := NewPayload(64)
	filler := append([]byte{}, b[protocol.MinMessageSize:]...)
	PutHeader(b, 7, 8)
	require.Equal(t, filler, b[protocol.MinMessageSize:])
	m, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, Message{Sequence: 7, Timestamp: 8}, m)
}

func TestPayloadIsDeterministic(t *testing.T) {
	require.Equal(t, NewPayload(1024), NewPayload(1024))
	require.Len(t, NewPayload(13), 13)
	require.NotEqual(t, make([]byte, 32), NewPayload(32))
}

func TestEncodeUsesFiller(t *testing.T) {
	b, err := Encode(1, 2, 100)
	require.NoError(t, err)
	require.Equal(t, NewPayload(100)[protocol.MinMessageSize:], b[protocol.MinMessageSize:])
	require.Equal(t, make([]byte, protocol.MinMessageSize), NewPayload(protocol.MinMessageSize))
}
