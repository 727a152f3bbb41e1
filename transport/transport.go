// Package transport defines the contract between the benchmark state machines
// and the network.
//
// A Transport never blocks. Sends either succeed immediately or report
// backpressure, and events are collected by calling Update once per tick.
package transport

import "fmt"

// A ConnectionID identifies a peer connection.
// It is assigned by the transport once per accepted call.
type ConnectionID int32

// InvalidConnectionID is never used for a live connection.
const InvalidConnectionID ConnectionID = -1

func (id ConnectionID) IsValid() bool { return id >= 0 }

func (id ConnectionID) String() string {
	if !id.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("%d", int32(id))
}

// EventType is the type of an Event.
type EventType uint8

const (
	// ConfigurationComplete is delivered after Configure succeeded.
	ConfigurationComplete EventType = iota + 1
	// ConfigurationFailed is delivered if Configure failed asynchronously.
	ConfigurationFailed
	// ListeningReady is delivered once the transport accepts incoming calls.
	ListeningReady
	// ListeningFailed is delivered if the address couldn't be bound.
	ListeningFailed
	// CallAccepted is delivered on both sides once a connection is established.
	CallAccepted
	// CallEnded is delivered when the peer closed the connection.
	CallEnded
	// ConnectionFailed is delivered if an outgoing call couldn't be established,
	// or if an established connection broke.
	ConnectionFailed
	// DataMessage carries a message received from the peer.
	DataMessage
)

func (t EventType) String() string {
	switch t {
	case ConfigurationComplete:
		return "configuration complete"
	case ConfigurationFailed:
		return "configuration failed"
	case ListeningReady:
		return "listening ready"
	case ListeningFailed:
		return "listening failed"
	case CallAccepted:
		return "call accepted"
	case CallEnded:
		return "call ended"
	case ConnectionFailed:
		return "connection failed"
	case DataMessage:
		return "data message"
	default:
		return fmt.Sprintf("unknown event type: %d", uint8(t))
	}
}

// An Event is produced by the transport and consumed by a state machine.
type Event struct {
	Type         EventType
	ConnectionID ConnectionID
	// Data is only set for DataMessage events. The receiver owns it.
	Data []byte
	// Reliable says on which channel a DataMessage arrived.
	Reliable bool
	// Err is set for failure events, if the transport knows the cause.
	Err error
}

// A Transport is a single endpoint, either calling or listening.
type Transport interface {
	// Configure prepares the transport.
	// Completion is reported by a ConfigurationComplete or ConfigurationFailed event.
	Configure() error
	// Listen starts accepting a single incoming call on address.
	Listen(address string) error
	// Call connects to a listening transport.
	Call(address string) error
	// Send queues a message. The payload is copied.
	// The return value is false if the message was not accepted,
	// either because the outbound buffer is full or because the connection is gone.
	Send(payload []byte, reliable bool, peer ConnectionID) bool
	// BufferedAmount returns the number of bytes queued for a peer and delivery mode.
	BufferedAmount(peer ConnectionID, reliable bool) int
	// Update returns all events that occurred since the last call.
	// It never blocks.
	Update() []Event
	// Close releases all resources. It is safe to call Close multiple times.
	Close() error
}

// A Factory creates a new transport.
// State machines create a fresh transport for every run.
type Factory func() (Transport, error)
