package dcbench

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/dcbench/internal/ackhandler"
	"github.com/quic-go/dcbench/internal/congestion"
	"github.com/quic-go/dcbench/internal/monotime"
	"github.com/quic-go/dcbench/internal/protocol"
	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/internal/stats"
	"github.com/quic-go/dcbench/internal/wire"
	"github.com/quic-go/dcbench/logging"
	"github.com/quic-go/dcbench/transport"

	"golang.org/x/time/rate"
)

// A Sender sends messages to a Responder at a configured rate, and measures
// throughput, latency and loss using the acknowledgements it receives.
//
// The Sender is driven by calling Tick periodically, usually via Run.
// Stats, Restart and SetTargetRate may be called from any goroutine.
type Sender struct {
	config       *Config
	newTransport transport.Factory
	logger       *slog.Logger
	ledgerLogger *slog.Logger
	tracer       *logging.Tracer

	restartRequested atomic.Bool
	targetRate       atomic.Int64
	snapshot         atomic.Pointer[SenderStats]

	mx sync.Mutex // guards everything below; held during Tick and Close

	state     SenderState
	tr        transport.Transport
	peer      transport.ConnectionID
	started   bool
	run       uint64
	lastTick  monotime.Time
	runStart  monotime.Time
	restartAt monotime.Time
	err       error

	payload  []byte
	lastSent uint32 // sequence number of the last message sent
	expected uint32 // sequence number of the next expected acknowledgement

	pacer   congestion.Pacer
	channel pacerChannel
	ledger  *ackhandler.OutstandingMessages
	stats   *stats.Aggregator

	messagesSent     uint64
	messagesReceived uint64
	messagesLost     uint64
	outOfOrder       uint64
	unexpectedAcks   uint64
	malformed        uint64
	latency          time.Duration
	buffered         int

	pausedLog     rate.Sometimes
	outOfOrderLog rate.Sometimes
	unexpectedLog rate.Sometimes
}

var _ Machine = &Sender{}

// NewSender creates a new sender.
// newTransport is called at the beginning of every run.
// The first run starts with the first call to Tick.
func NewSender(newTransport TransportFactory, config *Config) (*Sender, error) {
	if newTransport == nil {
		return nil, &TransportError{Op: "create", Err: errNoTransportFactory}
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config, protocol.RoleSender)
	s := &Sender{
		config:        config,
		newTransport:  newTransport,
		logger:        ilog.WithComponent(config.Logger, ilog.ComponentSender),
		ledgerLogger:  ilog.WithComponent(config.Logger, ilog.ComponentLedger),
		tracer:        config.Tracer,
		peer:          transport.InvalidConnectionID,
		payload:       wire.NewPayload(config.MessageSize),
		ledger:        ackhandler.NewOutstandingMessages(),
		stats:         stats.NewAggregator(config.StatsWindow),
		pausedLog:     rate.Sometimes{Interval: time.Second},
		outOfOrderLog: rate.Sometimes{Interval: time.Second},
		unexpectedLog: rate.Sometimes{Interval: time.Second},
	}
	s.channel.s = s
	s.targetRate.Store(int64(config.TargetRate))
	s.publish(0)
	return s, nil
}

// SetTargetRate changes the target rate in bytes/s.
// It takes effect at the next tick. A rate of 0 stops sending.
func (s *Sender) SetTargetRate(r ByteCount) {
	if r < 0 {
		r = 0
	}
	s.targetRate.Store(int64(r))
}

// Restart ends the current run.
// A new run is started after the restart delay.
// This is the only way to leave SenderStateHalted.
func (s *Sender) Restart() {
	s.restartRequested.Store(true)
}

// Stats returns the snapshot taken at the end of the last tick.
func (s *Sender) Stats() SenderStats {
	return *s.snapshot.Load()
}

// State returns the current state.
func (s *Sender) State() SenderState {
	return s.snapshot.Load().State
}

// Err returns the error that halted or failed the current run, if any.
func (s *Sender) Err() error {
	return s.snapshot.Load().Err
}

// Tick advances the state machine to now.
func (s *Sender) Tick(now time.Time) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.state == SenderStateReleased {
		return
	}
	t := monotime.FromTime(now)
	var elapsed time.Duration
	if s.started && t.After(s.lastTick) {
		elapsed = t.Sub(s.lastTick)
	}
	s.lastTick = t

	if s.restartRequested.Swap(false) && s.started {
		s.logger.Info("restart requested", "state", s.state)
		s.endRun(t, SenderStateIdle)
	}
	if !s.started {
		s.started = true
		s.startRun(t)
	} else if !s.restartAt.IsZero() && !t.Before(s.restartAt) {
		s.restartAt = 0
		s.setState(SenderStateIdle)
		s.startRun(t)
	}

	published := s.stats.Advance(elapsed)

	if s.tr != nil {
		for _, ev := range s.tr.Update() {
			s.handleEvent(ev, t)
			if s.tr == nil {
				break
			}
		}
	}

	if s.state == SenderStateActive {
		s.sendMessages(elapsed, t)
	}
	if s.state == SenderStateActive || s.state == SenderStateHalted {
		s.sweepTimeouts(t)
	}
	if s.tr != nil && s.peer.IsValid() {
		s.buffered = s.tr.BufferedAmount(s.peer, !s.config.Unreliable)
	} else {
		s.buffered = 0
	}
	s.publish(t)
	if published && s.tracer != nil && s.tracer.UpdatedSenderStats != nil {
		s.tracer.UpdatedSenderStats(*s.snapshot.Load())
	}
}

// Close releases the transport.
// The sender can't be used afterwards.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.state == SenderStateReleased {
		return nil
	}
	err := s.releaseTransport()
	s.ledger.Clear()
	s.restartAt = 0
	s.setState(SenderStateReleased)
	s.publish(s.lastTick)
	if s.tracer != nil && s.tracer.Close != nil {
		s.tracer.Close()
	}
	return err
}

func (s *Sender) startRun(t monotime.Time) {
	s.run++
	s.lastSent = 0
	s.expected = 1
	s.err = nil
	s.peer = transport.InvalidConnectionID
	s.runStart = t
	s.messagesSent = 0
	s.messagesReceived = 0
	s.messagesLost = 0
	s.outOfOrder = 0
	s.unexpectedAcks = 0
	s.malformed = 0
	s.latency = 0
	s.pacer.Reset()
	s.ledger.Clear()
	s.stats.Reset()

	s.logger.Debug("starting run", "run", s.run)
	if s.tracer != nil && s.tracer.StartedRun != nil {
		s.tracer.StartedRun(logging.RoleSender)
	}
	tr, err := s.newTransport()
	if err != nil {
		s.fail(t, &TransportError{Op: "create", Err: err})
		return
	}
	s.tr = tr
	s.setState(SenderStateAwaitingConfiguration)
	if err := tr.Configure(); err != nil {
		s.fail(t, &TransportError{Op: "configure", Err: err})
	}
}

func (s *Sender) handleEvent(ev transport.Event, t monotime.Time) {
	switch ev.Type {
	case transport.ConfigurationComplete:
		if s.state != SenderStateAwaitingConfiguration {
			return
		}
		if err := s.tr.Call(s.config.Address); err != nil {
			s.fail(t, &TransportError{Op: "call", Err: err})
			return
		}
		s.setState(SenderStateAwaitingConnection)
	case transport.ConfigurationFailed:
		s.fail(t, &TransportError{Op: "configure", Err: ev.Err})
	case transport.ConnectionFailed:
		s.fail(t, &TransportError{Op: "connect", Err: ev.Err})
	case transport.CallAccepted:
		if s.state != SenderStateAwaitingConnection {
			s.logger.Warn("ignoring unexpected call", "peer", ev.ConnectionID, "state", s.state)
			return
		}
		s.peer = ev.ConnectionID
		s.runStart = t
		s.logger.Info("connected", "peer", ev.ConnectionID, "run", s.run)
		s.setState(SenderStateActive)
	case transport.CallEnded:
		s.logger.Info("call ended", "peer", s.peer)
		s.endRun(t, SenderStateEnded)
	case transport.DataMessage:
		if s.state == SenderStateActive || s.state == SenderStateHalted {
			s.handleReply(ev.Data, t)
		}
	default:
		s.logger.Debug("ignoring event", "event", ev.Type)
	}
}

func (s *Sender) fail(t monotime.Time, err error) {
	s.logger.Warn("run failed", "error", err)
	if s.state != SenderStateHalted {
		s.err = err
	}
	s.endRun(t, SenderStateFailed)
}

// endRun releases the transport and schedules the next run.
// A halted sender stays halted until Restart is called.
func (s *Sender) endRun(t monotime.Time, state SenderState) {
	if err := s.releaseTransport(); err != nil {
		s.logger.Debug("closing transport failed", "error", err)
	}
	s.ledger.Clear()
	if s.state == SenderStateHalted && state != SenderStateIdle {
		return
	}
	s.setState(state)
	s.restartAt = t.Add(s.config.RestartDelay)
}

func (s *Sender) releaseTransport() error {
	if s.tr == nil {
		return nil
	}
	err := s.tr.Close()
	s.tr = nil
	s.peer = transport.InvalidConnectionID
	return err
}

func (s *Sender) runTimeMs(t monotime.Time) uint32 {
	return uint32(t.Sub(s.runStart).Milliseconds())
}

func (s *Sender) sendMessages(elapsed time.Duration, t monotime.Time) {
	s.channel.nowMs = s.runTimeMs(t)
	s.pacer.Tick(
		elapsed,
		ByteCount(s.targetRate.Load()),
		s.config.MessageSize,
		int(s.config.MaxBufferedBytes),
		&s.channel,
	)
	if !s.pacer.Paused() {
		return
	}
	buffered := s.tr.BufferedAmount(s.peer, !s.config.Unreliable)
	s.pausedLog.Do(func() {
		s.logger.Debug("send buffer full, pausing", "buffered", buffered, "pauses", s.pacer.BufferFullCount())
	})
	if s.tracer != nil && s.tracer.PausedSending != nil {
		s.tracer.PausedSending(ByteCount(buffered))
	}
}

func (s *Sender) sendMessage(nowMs uint32) bool {
	seq := s.lastSent + 1
	wire.PutHeader(s.payload, seq, nowMs)
	if !s.tr.Send(s.payload, !s.config.Unreliable, s.peer) {
		return false
	}
	s.lastSent = seq
	if !s.ledger.Record(seq, nowMs) {
		s.ledgerLogger.Warn("sequence number reused", "seq", seq)
	}
	s.messagesSent++
	s.stats.AddSent(ByteCount(len(s.payload)))
	if s.tracer != nil && s.tracer.SentMessage != nil {
		s.tracer.SentMessage(seq, ByteCount(len(s.payload)))
	}
	return true
}

func (s *Sender) handleReply(data []byte, t monotime.Time) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.malformed++
		s.logger.Warn("dropping malformed acknowledgement", "error", err)
		if s.tracer != nil && s.tracer.DroppedMalformedMessage != nil {
			s.tracer.DroppedMalformedMessage(logging.RoleSender, ByteCount(len(data)))
		}
		return
	}

	if msg.Sequence != s.expected {
		s.outOfOrder++
		if s.tracer != nil && s.tracer.ReceivedOutOfOrder != nil {
			s.tracer.ReceivedOutOfOrder(s.expected, msg.Sequence)
		}
		if !s.config.Unreliable {
			if s.state == SenderStateActive {
				s.halt(&ProtocolViolationError{Expected: s.expected, Received: msg.Sequence})
			}
		} else {
			expected := s.expected
			s.outOfOrderLog.Do(func() {
				s.logger.Debug("acknowledgement out of order", "expected", expected, "received", msg.Sequence)
			})
		}
	}

	if s.ledger.Acknowledge(msg.Sequence) {
		s.stats.AddConfirmed(ByteCount(s.config.MessageSize))
	} else {
		s.unexpectedAcks++
		s.unexpectedLog.Do(func() {
			s.ledgerLogger.Warn("acknowledgement for unknown message", "seq", msg.Sequence)
		})
		if s.tracer != nil && s.tracer.UnexpectedAcknowledgement != nil {
			s.tracer.UnexpectedAcknowledgement(msg.Sequence)
		}
	}
	s.messagesReceived++
	s.stats.AddReceived(ByteCount(len(data)))
	s.expected = msg.Sequence + 1
	// the timestamp was taken from the same run clock, the difference is small and may wrap
	s.latency = time.Duration(int32(s.runTimeMs(t)-msg.Timestamp)) * time.Millisecond
	if s.tracer != nil && s.tracer.AcknowledgedMessage != nil {
		s.tracer.AcknowledgedMessage(msg.Sequence, s.latency)
	}
}

func (s *Sender) halt(err *ProtocolViolationError) {
	s.err = err
	s.logger.Error("reliable transport violated ordering, halting", "expected", err.Expected, "received", err.Received)
	if s.tracer != nil && s.tracer.ProtocolViolation != nil {
		s.tracer.ProtocolViolation(err.Expected, err.Received)
	}
	s.setState(SenderStateHalted)
}

func (s *Sender) sweepTimeouts(t monotime.Time) {
	timeoutMs := uint32(s.config.ConfirmationTimeout.Milliseconds())
	n := s.ledger.SweepTimeouts(s.runTimeMs(t), timeoutMs, func(seq, _ uint32) {
		if s.tracer != nil && s.tracer.LostMessage != nil {
			s.tracer.LostMessage(seq)
		}
	})
	if n > 0 {
		s.messagesLost += uint64(n)
		s.ledgerLogger.Debug("messages timed out", "count", n, "lost", s.messagesLost)
	}
}

func (s *Sender) setState(state SenderState) {
	if s.state == state {
		return
	}
	old := s.state
	s.state = state
	s.logger.Debug("state changed", "from", old, "to", state)
	if s.tracer != nil && s.tracer.ChangedSenderState != nil {
		s.tracer.ChangedSenderState(old, state)
	}
}

func (s *Sender) publish(t monotime.Time) {
	rates := s.stats.Rates()
	snap := &SenderStats{
		State:            s.state,
		Run:              s.run,
		TargetRate:       ByteCount(s.targetRate.Load()),
		Unreliable:       s.config.Unreliable,
		MessagesSent:     s.messagesSent,
		MessagesReceived: s.messagesReceived,
		MessagesLost:     s.messagesLost,
		OutOfOrder:       s.outOfOrder,
		UnexpectedAcks:   s.unexpectedAcks,
		Malformed:        s.malformed,
		BufferFull:       s.pacer.BufferFullCount(),
		Outstanding:      s.ledger.Len(),
		AvgSent:          rates.Sent,
		AvgConfirmed:     rates.Confirmed,
		AvgReceived:      rates.Received,
		Latency:          s.latency,
		BufferedAmount:   s.buffered,
		Paused:           s.state == SenderStateActive && s.pacer.Paused(),
		Err:              s.err,
	}
	if s.state == SenderStateActive || s.state == SenderStateHalted {
		snap.RunTime = t.Sub(s.runStart)
	}
	s.snapshot.Store(snap)
}

// pacerChannel connects the pacer to the sender's transport.
type pacerChannel struct {
	s     *Sender
	nowMs uint32
}

var _ congestion.Channel = &pacerChannel{}

func (c *pacerChannel) BufferedAmount() int {
	return c.s.tr.BufferedAmount(c.s.peer, !c.s.config.Unreliable)
}

func (c *pacerChannel) SendMessage() bool {
	return c.s.sendMessage(c.nowMs)
}
