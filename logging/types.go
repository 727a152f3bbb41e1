package logging

import (
	"fmt"
	"time"
)

// SenderState is the state of the sender state machine.
type SenderState uint8

const (
	// SenderStateIdle: no transport, waiting to start a run
	SenderStateIdle SenderState = iota
	// SenderStateAwaitingConfiguration: the transport is being configured
	SenderStateAwaitingConfiguration
	// SenderStateAwaitingConnection: a call was placed, the responder hasn't accepted yet
	SenderStateAwaitingConnection
	// SenderStateActive: messages are being sent
	SenderStateActive
	// SenderStateEnded: the responder ended the call, a restart is scheduled
	SenderStateEnded
	// SenderStateFailed: setup or the connection failed, a restart is scheduled
	SenderStateFailed
	// SenderStateHalted: a reliable transport reordered or dropped a message.
	// Replies are still processed, but nothing is sent until Restart is called.
	SenderStateHalted
	// SenderStateReleased: the sender was closed
	SenderStateReleased
)

func (s SenderState) String() string {
	switch s {
	case SenderStateIdle:
		return "idle"
	case SenderStateAwaitingConfiguration:
		return "awaiting configuration"
	case SenderStateAwaitingConnection:
		return "awaiting connection"
	case SenderStateActive:
		return "active"
	case SenderStateEnded:
		return "ended"
	case SenderStateFailed:
		return "failed"
	case SenderStateHalted:
		return "halted"
	case SenderStateReleased:
		return "released"
	default:
		return fmt.Sprintf("unknown sender state: %d", uint8(s))
	}
}

// ResponderState is the state of the echo responder.
type ResponderState uint8

const (
	// ResponderStateIdle: no transport, waiting to start
	ResponderStateIdle ResponderState = iota
	// ResponderStateRegistering: the transport is being configured
	ResponderStateRegistering
	// ResponderStateListening: waiting for the sender to call
	ResponderStateListening
	// ResponderStateConnected: echoing messages
	ResponderStateConnected
	// ResponderStateEnded: the call ended, a restart is scheduled
	ResponderStateEnded
	// ResponderStateListenFailed: setup failed, a restart is scheduled
	ResponderStateListenFailed
	// ResponderStateReleased: the responder was closed
	ResponderStateReleased
)

func (s ResponderState) String() string {
	switch s {
	case ResponderStateIdle:
		return "idle"
	case ResponderStateRegistering:
		return "registering"
	case ResponderStateListening:
		return "listening"
	case ResponderStateConnected:
		return "connected"
	case ResponderStateEnded:
		return "ended"
	case ResponderStateListenFailed:
		return "listen failed"
	case ResponderStateReleased:
		return "released"
	default:
		return fmt.Sprintf("unknown responder state: %d", uint8(s))
	}
}

// SenderStats is a snapshot of the sender.
// Counters belong to the current run and are reset when a new run starts.
type SenderStats struct {
	State SenderState
	// Run counts the runs started so far, starting at 1.
	Run        uint64
	TargetRate ByteCount
	Unreliable bool
	// RunTime is the time since the sender became active.
	RunTime time.Duration

	MessagesSent     uint64
	MessagesReceived uint64
	MessagesLost     uint64
	OutOfOrder       uint64
	UnexpectedAcks   uint64
	Malformed        uint64
	BufferFull       uint64
	Outstanding      int

	// Averages in bytes/s, updated at the end of every stats window.
	AvgSent      float64
	AvgConfirmed float64
	AvgReceived  float64

	// Latency of the most recent acknowledgement.
	Latency        time.Duration
	BufferedAmount int
	Paused         bool
	// Err is set if the sender halted or failed.
	Err error
}

// ResponderStats is a snapshot of the responder.
type ResponderStats struct {
	State ResponderState
	// Active is true while listening or connected.
	Active    bool
	Connected bool
	Peer      ConnectionID

	MessagesReceived uint64
	LastSequence     uint32
	Malformed        uint64
	DroppedReplies   uint64

	// AvgReceived is in bytes/s, updated at the end of every stats window.
	AvgReceived    float64
	BufferedAmount int
}
