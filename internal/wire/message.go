package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/quic-go/dcbench/internal/protocol"
)

// ErrMalformedMessage is returned when decoding a payload that is shorter than
// the message header. This usually means that the peers run incompatible versions.
var ErrMalformedMessage = errors.New("malformed message")

// A Message is the header of every benchmark message.
// Both the data messages and the acknowledgements carry it.
type Message struct {
	Sequence uint32
	// Timestamp in milliseconds since the start of the sender's run.
	Timestamp uint32
}

// fillerSeed seeds the filler, so every run sends the same bytes.
const fillerSeed = 0

// NewPayload allocates a payload of size bytes.
// The bytes following the header are pseudo-random filler from a fixed seed.
func NewPayload(size int) []byte {
	b := make([]byte, size)
	if size <= protocol.MinMessageSize {
		return b
	}
	rng := rand.New(rand.NewPCG(fillerSeed, fillerSeed))
	filler := b[protocol.MinMessageSize:]
	for i := 0; i < len(filler); i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], rng.Uint64())
		copy(filler[i:], word[:])
	}
	return b
}

// Encode writes a message into a new payload of size bytes, see NewPayload.
func Encode(seq, timestamp uint32, size int) ([]byte, error) {
	if size < protocol.MinMessageSize {
		return nil, fmt.Errorf("message size %d smaller than the minimum of %d bytes", size, protocol.MinMessageSize)
	}
	b := NewPayload(size)
	PutHeader(b, seq, timestamp)
	return b, nil
}

// PutHeader overwrites the header of b, keeping the filler.
// It panics if b is shorter than protocol.MinMessageSize.
func PutHeader(b []byte, seq, timestamp uint32) {
	binary.LittleEndian.PutUint32(b[0:4], seq)
	binary.LittleEndian.PutUint32(b[4:8], timestamp)
}

// Append appends the header of m to b.
func (m Message) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, m.Sequence)
	return binary.LittleEndian.AppendUint32(b, m.Timestamp)
}

// Decode parses the header of a payload. Filler bytes are ignored.
func Decode(b []byte) (Message, error) {
	if len(b) < protocol.MinMessageSize {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedMessage, len(b), protocol.MinMessageSize)
	}
	return Message{
		Sequence:  binary.LittleEndian.Uint32(b[0:4]),
		Timestamp: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}
