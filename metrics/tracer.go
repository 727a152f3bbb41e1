// Package metrics exports benchmark statistics to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/quic-go/dcbench/logging"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "dcbench"

var (
	runsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "runs_started_total",
			Help:      "Benchmark runs started",
		},
		[]string{"role"},
	)
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_sent_total",
			Help:      "Data messages sent",
		},
	)
	messagesAcknowledged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_acknowledged_total",
			Help:      "Data messages acknowledged by the responder",
		},
	)
	messagesLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_lost_total",
			Help:      "Data messages not acknowledged within the confirmation timeout",
		},
	)
	messagesUnexpected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_unexpected_total",
			Help:      "Acknowledgements for messages that were not outstanding",
		},
	)
	messagesOutOfOrder = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_out_of_order_total",
			Help:      "Acknowledgements that skipped the expected sequence number",
		},
	)
	protocolViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "protocol_violations_total",
			Help:      "Ordering violations in reliable mode",
		},
	)
	sendPaused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "send_paused_total",
			Help:      "Ticks on which the sender paused because the transport buffer was full",
		},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_received_total",
			Help:      "Data messages received by the responder",
		},
	)
	repliesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "replies_dropped_total",
			Help:      "Acknowledgements the responder couldn't send",
		},
	)
	messagesMalformed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "messages_malformed_total",
			Help:      "Messages shorter than the header",
		},
		[]string{"role"},
	)
	latency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "latency_seconds",
			Help:      "Round-trip time of a data message and its acknowledgement",
			Buckets:   prometheus.ExponentialBuckets(0.001, 1.5, 25), // up to ~17s
		},
	)
	rate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "rate_bytes_per_second",
			Help:      "Rolling average rate",
		},
		[]string{"role", "direction"},
	)
	outstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "outstanding_messages",
			Help:      "Messages waiting for an acknowledgement",
		},
	)
	buffered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "buffered_bytes",
			Help:      "Bytes queued in the transport",
		},
		[]string{"role"},
	)
)

// NewTracer creates a new tracer using the default Prometheus registerer.
func NewTracer() *logging.Tracer {
	return NewTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTracerWithRegisterer creates a new tracer using a given Prometheus registerer.
// The same tracer can be used for a sender and a responder.
func NewTracerWithRegisterer(registerer prometheus.Registerer) *logging.Tracer {
	for _, c := range [...]prometheus.Collector{
		runsStarted,
		messagesSent,
		messagesAcknowledged,
		messagesLost,
		messagesUnexpected,
		messagesOutOfOrder,
		protocolViolations,
		sendPaused,
		messagesReceived,
		repliesDropped,
		messagesMalformed,
		latency,
		rate,
		outstanding,
		buffered,
	} {
		if err := registerer.Register(c); err != nil {
			if ok := errors.As(err, &prometheus.AlreadyRegisteredError{}); !ok {
				panic(err)
			}
		}
	}

	sender := logging.RoleSender.String()
	responder := logging.RoleResponder.String()
	var (
		senderSent       = rate.WithLabelValues(sender, "sent")
		senderConfirmed  = rate.WithLabelValues(sender, "confirmed")
		senderReceived   = rate.WithLabelValues(sender, "received")
		responderRate    = rate.WithLabelValues(responder, "received")
		senderBuffered   = buffered.WithLabelValues(sender)
		responderBuffered  = buffered.WithLabelValues(responder)
		senderMalformed  = messagesMalformed.WithLabelValues(sender)
		responderMalformed = messagesMalformed.WithLabelValues(responder)
	)

	return &logging.Tracer{
		StartedRun: func(r logging.Role) {
			runsStarted.WithLabelValues(r.String()).Inc()
		},
		SentMessage: func(uint32, logging.ByteCount) {
			messagesSent.Inc()
		},
		AcknowledgedMessage: func(_ uint32, rtt time.Duration) {
			messagesAcknowledged.Inc()
			latency.Observe(rtt.Seconds())
		},
		UnexpectedAcknowledgement: func(uint32) {
			messagesUnexpected.Inc()
		},
		ReceivedOutOfOrder: func(_, _ uint32) {
			messagesOutOfOrder.Inc()
		},
		LostMessage: func(uint32) {
			messagesLost.Inc()
		},
		PausedSending: func(logging.ByteCount) {
			sendPaused.Inc()
		},
		ProtocolViolation: func(_, _ uint32) {
			protocolViolations.Inc()
		},
		ReceivedMessage: func(uint32, logging.ByteCount) {
			messagesReceived.Inc()
		},
		DroppedReply: func(uint32) {
			repliesDropped.Inc()
		},
		DroppedMalformedMessage: func(r logging.Role, _ logging.ByteCount) {
			if r == logging.RoleSender {
				senderMalformed.Inc()
			} else {
				responderMalformed.Inc()
			}
		},
		UpdatedSenderStats: func(s logging.SenderStats) {
			senderSent.Set(s.AvgSent)
			senderConfirmed.Set(s.AvgConfirmed)
			senderReceived.Set(s.AvgReceived)
			senderBuffered.Set(float64(s.BufferedAmount))
			outstanding.Set(float64(s.Outstanding))
		},
		UpdatedResponderStats: func(s logging.ResponderStats) {
			responderRate.Set(s.AvgReceived)
			responderBuffered.Set(float64(s.BufferedAmount))
		},
	}
}
