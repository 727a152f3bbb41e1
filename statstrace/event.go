package statstrace

import (
	"time"

	"github.com/quic-go/dcbench/logging"

	"github.com/francoispqt/gojay"
)

func milliseconds(d time.Duration) float64 { return float64(d.Nanoseconds()) / 1e6 }

type header struct {
	Role          logging.Role
	ReferenceTime time.Time
}

var _ gojay.MarshalerJSONObject = &header{}

func (h *header) IsNil() bool { return false }
func (h *header) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("title", "dcbench")
	enc.StringKey("role", h.Role.String())
	enc.Float64Key("reference_time", float64(h.ReferenceTime.UnixNano())/1e6)
}

type eventDetails interface {
	Name() string
	gojay.MarshalerJSONObject
}

type event struct {
	RelativeTime time.Duration
	eventDetails
}

var _ gojay.MarshalerJSONObject = event{}

func (e event) IsNil() bool { return false }
func (e event) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("time", milliseconds(e.RelativeTime))
	enc.StringKey("name", e.Name())
	enc.ObjectKey("data", e.eventDetails)
}

type eventRunStarted struct {
	Role logging.Role
}

func (e eventRunStarted) Name() string { return "run_started" }
func (e eventRunStarted) IsNil() bool  { return false }
func (e eventRunStarted) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("role", e.Role.String())
}

type eventStateChanged struct {
	Old, New string
}

func (e eventStateChanged) Name() string { return "state_changed" }
func (e eventStateChanged) IsNil() bool  { return false }
func (e eventStateChanged) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("old", e.Old)
	enc.StringKey("new", e.New)
}

type eventMessageLost struct {
	Sequence uint32
}

func (e eventMessageLost) Name() string { return "message_lost" }
func (e eventMessageLost) IsNil() bool  { return false }
func (e eventMessageLost) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint32Key("seq", e.Sequence)
}

type eventUnexpectedAck struct {
	Sequence uint32
}

func (e eventUnexpectedAck) Name() string { return "unexpected_acknowledgement" }
func (e eventUnexpectedAck) IsNil() bool  { return false }
func (e eventUnexpectedAck) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint32Key("seq", e.Sequence)
}

// eventOutOfOrder is used for out-of-order acknowledgements and for protocol violations.
type eventOutOfOrder struct {
	Violation          bool
	Expected, Received uint32
}

func (e eventOutOfOrder) Name() string {
	if e.Violation {
		return "protocol_violation"
	}
	return "out_of_order"
}
func (e eventOutOfOrder) IsNil() bool { return false }
func (e eventOutOfOrder) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint32Key("expected", e.Expected)
	enc.Uint32Key("received", e.Received)
}

type eventSendingPaused struct {
	Buffered logging.ByteCount
}

func (e eventSendingPaused) Name() string { return "sending_paused" }
func (e eventSendingPaused) IsNil() bool  { return false }
func (e eventSendingPaused) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Int64Key("buffered", int64(e.Buffered))
}

type eventReplyDropped struct {
	Sequence uint32
}

func (e eventReplyDropped) Name() string { return "reply_dropped" }
func (e eventReplyDropped) IsNil() bool  { return false }
func (e eventReplyDropped) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Uint32Key("seq", e.Sequence)
}

type eventMalformedMessage struct {
	Role logging.Role
	Size logging.ByteCount
}

func (e eventMalformedMessage) Name() string { return "malformed_message" }
func (e eventMalformedMessage) IsNil() bool  { return false }
func (e eventMalformedMessage) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("role", e.Role.String())
	enc.Int64Key("size", int64(e.Size))
}

type eventSenderStats logging.SenderStats

func (e eventSenderStats) Name() string { return "sender_stats" }
func (e eventSenderStats) IsNil() bool  { return false }
func (e eventSenderStats) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("state", e.State.String())
	enc.Uint64Key("run", e.Run)
	enc.Int64Key("target_rate", int64(e.TargetRate))
	enc.BoolKey("unreliable", e.Unreliable)
	enc.Float64Key("run_time", milliseconds(e.RunTime))
	enc.Uint64Key("messages_sent", e.MessagesSent)
	enc.Uint64Key("messages_received", e.MessagesReceived)
	enc.Uint64Key("messages_lost", e.MessagesLost)
	enc.Uint64Key("out_of_order", e.OutOfOrder)
	enc.Uint64Key("unexpected_acks", e.UnexpectedAcks)
	enc.Uint64Key("malformed", e.Malformed)
	enc.Uint64Key("buffer_full", e.BufferFull)
	enc.IntKey("outstanding", e.Outstanding)
	enc.Float64Key("avg_sent", e.AvgSent)
	enc.Float64Key("avg_confirmed", e.AvgConfirmed)
	enc.Float64Key("avg_received", e.AvgReceived)
	enc.Float64Key("latency", milliseconds(e.Latency))
	enc.IntKey("buffered", e.BufferedAmount)
	enc.BoolKeyOmitEmpty("paused", e.Paused)
	if e.Err != nil {
		enc.StringKey("error", e.Err.Error())
	}
}

type eventResponderStats logging.ResponderStats

func (e eventResponderStats) Name() string { return "responder_stats" }
func (e eventResponderStats) IsNil() bool  { return false }
func (e eventResponderStats) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("state", e.State.String())
	enc.BoolKey("connected", e.Connected)
	enc.Uint64Key("messages_received", e.MessagesReceived)
	enc.Uint32Key("last_seq", e.LastSequence)
	enc.Uint64Key("malformed", e.Malformed)
	enc.Uint64Key("dropped_replies", e.DroppedReplies)
	enc.Float64Key("avg_received", e.AvgReceived)
	enc.IntKey("buffered", e.BufferedAmount)
}
