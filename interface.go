package dcbench

import (
	"log/slog"
	"time"

	"github.com/quic-go/dcbench/internal/protocol"
	"github.com/quic-go/dcbench/logging"
	"github.com/quic-go/dcbench/transport"
)

type (
	// A ByteCount is an amount of payload bytes.
	ByteCount = protocol.ByteCount

	Transport        = transport.Transport
	TransportFactory = transport.Factory
	ConnectionID     = transport.ConnectionID

	SenderState    = logging.SenderState
	ResponderState = logging.ResponderState
	SenderStats    = logging.SenderStats
	ResponderStats = logging.ResponderStats
)

const (
	SenderStateIdle                  = logging.SenderStateIdle
	SenderStateAwaitingConfiguration = logging.SenderStateAwaitingConfiguration
	SenderStateAwaitingConnection    = logging.SenderStateAwaitingConnection
	SenderStateActive                = logging.SenderStateActive
	SenderStateEnded                 = logging.SenderStateEnded
	SenderStateFailed                = logging.SenderStateFailed
	SenderStateHalted                = logging.SenderStateHalted
	SenderStateReleased              = logging.SenderStateReleased
)

const (
	ResponderStateIdle         = logging.ResponderStateIdle
	ResponderStateRegistering  = logging.ResponderStateRegistering
	ResponderStateListening    = logging.ResponderStateListening
	ResponderStateConnected    = logging.ResponderStateConnected
	ResponderStateEnded        = logging.ResponderStateEnded
	ResponderStateListenFailed = logging.ResponderStateListenFailed
	ResponderStateReleased     = logging.ResponderStateReleased
)

// Config contains all configuration data needed for a benchmark run.
// The same Config can be used for the sender and the responder.
type Config struct {
	// Address is passed to Transport.Listen and Transport.Call.
	// If not set, "dcbench" is used.
	Address string
	// MessageSize is the size of every data message, including the 8 byte header.
	// If not set, it defaults to 1024 bytes.
	MessageSize int
	// TargetRate is the rate in bytes/s that the sender paces its messages at.
	// It can be changed while running using Sender.SetTargetRate.
	// If not set, it defaults to 1 Mbit/s.
	TargetRate ByteCount
	// Unreliable makes the sender use unordered, unreliable delivery.
	// Replies are always sent reliably.
	Unreliable bool
	// ConfirmationTimeout is the time after which a message that was not acknowledged is declared lost.
	// If not set, it defaults to 30s.
	ConfirmationTimeout time.Duration
	// MaxBufferedBytes is the amount of data queued in the transport above which the sender pauses.
	// If not set, it defaults to 256 KB.
	MaxBufferedBytes ByteCount
	// StatsWindow is the interval at which rolling averages are published.
	// If not set, it defaults to 4s.
	StatsWindow time.Duration
	// RestartDelay is the cooldown before a new run is started after a call ended or failed.
	// If not set, it defaults to 1.5s for the sender and 1s for the responder.
	RestartDelay time.Duration
	// Logger is used for all log output.
	// If not set, the logger is configured using the DCBENCH_LOG_LEVEL environment variable.
	Logger *slog.Logger
	// Tracer receives events and statistics.
	Tracer *logging.Tracer
}

// A Machine is a state machine that is driven by periodic ticks.
// Both Sender and Responder implement it.
type Machine interface {
	Tick(now time.Time)
	Close() error
}
