// Package statstrace writes a trace of benchmark statistics and anomalies.
//
// The trace is a JSON text sequence (RFC 7464): a header record, followed by
// one record per event. Per-message events are not traced, only anomalies,
// state changes and the periodic statistics.
package statstrace

import (
	"io"
	"time"

	"github.com/quic-go/dcbench/logging"
)

// NewTracer creates a tracer that writes to w.
// w is closed when the tracer is closed.
func NewTracer(w io.WriteCloser, role logging.Role) *logging.Tracer {
	wr := newWriter(w, &header{Role: role, ReferenceTime: time.Now()})
	record := func(details eventDetails) { wr.RecordEvent(time.Now(), details) }

	return &logging.Tracer{
		ChangedSenderState: func(old, new logging.SenderState) {
			record(eventStateChanged{Old: old.String(), New: new.String()})
		},
		ChangedResponderState: func(old, new logging.ResponderState) {
			record(eventStateChanged{Old: old.String(), New: new.String()})
		},
		StartedRun: func(r logging.Role) {
			record(eventRunStarted{Role: r})
		},
		UnexpectedAcknowledgement: func(seq uint32) {
			record(eventUnexpectedAck{Sequence: seq})
		},
		ReceivedOutOfOrder: func(expected, received uint32) {
			record(eventOutOfOrder{Expected: expected, Received: received})
		},
		LostMessage: func(seq uint32) {
			record(eventMessageLost{Sequence: seq})
		},
		PausedSending: func(buffered logging.ByteCount) {
			record(eventSendingPaused{Buffered: buffered})
		},
		ProtocolViolation: func(expected, received uint32) {
			record(eventOutOfOrder{Violation: true, Expected: expected, Received: received})
		},
		DroppedReply: func(seq uint32) {
			record(eventReplyDropped{Sequence: seq})
		},
		DroppedMalformedMessage: func(r logging.Role, size logging.ByteCount) {
			record(eventMalformedMessage{Role: r, Size: size})
		},
		UpdatedSenderStats: func(s logging.SenderStats) {
			record(eventSenderStats(s))
		},
		UpdatedResponderStats: func(s logging.ResponderStats) {
			record(eventResponderStats(s))
		},
		Close: wr.Close,
	}
}
