package dcbench

import (
	"errors"
	"fmt"

	"github.com/quic-go/dcbench/internal/wire"
)

// ErrMalformedMessage is the error for payloads shorter than the message header.
var ErrMalformedMessage = wire.ErrMalformedMessage

var errNoTransportFactory = errors.New("no transport factory")

// A ProtocolViolationError is reported when a reliable transport delivered
// acknowledgements out of order, or dropped one.
type ProtocolViolationError struct {
	Expected uint32
	Received uint32
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: expected acknowledgement %d, received %d on a reliable channel", e.Expected, e.Received)
}

// A TransportError is reported when setting up the transport failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s failed", e.Op)
	}
	return fmt.Sprintf("transport: %s failed: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
