package protocol

import "time"

// MinMessageSize is the size of the message header: a 4 byte sequence number
// followed by a 4 byte timestamp.
const MinMessageSize = 8

// DefaultMessageSize is the payload size used if no size is configured.
// Larger messages risk fragmentation on the data channel.
const DefaultMessageSize = 1024

// DefaultTargetRate is the byte rate the sender tries to reach (1 Mbit/s).
const DefaultTargetRate ByteCount = 1024 * 1024 / 8

// DefaultConfirmationTimeout is the time after which an unacknowledged message
// is declared lost.
// Messages can spend a few seconds in the send buffer, so this should be
// well above the time needed to drain MaxBufferedBytes.
const DefaultConfirmationTimeout = 30 * time.Second

// DefaultMaxBufferedBytes is the amount of data buffered by the transport
// above which the sender pauses.
const DefaultMaxBufferedBytes ByteCount = 256 * 1024

// DefaultStatsWindow is the interval at which rolling averages are published.
const DefaultStatsWindow = 4 * time.Second

// DefaultSenderRestartDelay is the cooldown before the sender reconnects.
// It gives the responder time to restart as well.
const DefaultSenderRestartDelay = 1500 * time.Millisecond

// DefaultResponderRestartDelay is the cooldown before the responder listens again.
const DefaultResponderRestartDelay = time.Second

// DefaultAddress is the address used for signaling if none is configured.
const DefaultAddress = "dcbench"

// MaxMessageSize is the largest message accepted by the stream based transports.
const MaxMessageSize = 1 << 20
