// Package logging defines the tracing hooks of the benchmark state machines.
// This package should not be considered stable.
package logging

import (
	"time"

	"github.com/quic-go/dcbench/internal/protocol"
	"github.com/quic-go/dcbench/transport"
)

type (
	// A ByteCount is an amount of payload bytes.
	ByteCount = protocol.ByteCount
	// A Role is the role of an endpoint.
	Role = protocol.Role
	// A ConnectionID identifies a peer connection.
	ConnectionID = transport.ConnectionID
)

const (
	// RoleSender is the endpoint that drives the traffic.
	RoleSender = protocol.RoleSender
	// RoleResponder is the endpoint that echoes acknowledgements.
	RoleResponder = protocol.RoleResponder
)

// A Tracer records events of a sender or a responder.
// All callbacks are optional, and they are called from the goroutine that ticks the state machine.
type Tracer struct {
	ChangedSenderState        func(old, new SenderState)
	ChangedResponderState     func(old, new ResponderState)
	StartedRun                func(Role)
	SentMessage               func(seq uint32, size ByteCount)
	AcknowledgedMessage       func(seq uint32, latency time.Duration)
	UnexpectedAcknowledgement func(seq uint32)
	ReceivedOutOfOrder        func(expected, received uint32)
	LostMessage               func(seq uint32)
	PausedSending             func(buffered ByteCount)
	ProtocolViolation         func(expected, received uint32)
	ReceivedMessage           func(seq uint32, size ByteCount)
	DroppedReply              func(seq uint32)
	DroppedMalformedMessage   func(Role, ByteCount)
	// UpdatedSenderStats and UpdatedResponderStats are called whenever new rolling averages are published.
	UpdatedSenderStats    func(SenderStats)
	UpdatedResponderStats func(ResponderStats)
	Close                 func()
}
