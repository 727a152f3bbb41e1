package dcbench

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/dcbench/internal/monotime"
	"github.com/quic-go/dcbench/internal/protocol"
	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/internal/stats"
	"github.com/quic-go/dcbench/internal/wire"
	"github.com/quic-go/dcbench/logging"
	"github.com/quic-go/dcbench/transport"

	"golang.org/x/time/rate"
)

// A Responder accepts a single call from a Sender and acknowledges every
// message it receives by echoing the message header.
type Responder struct {
	config       *Config
	newTransport transport.Factory
	logger       *slog.Logger
	tracer       *logging.Tracer

	restartRequested atomic.Bool
	snapshot         atomic.Pointer[ResponderStats]

	mx sync.Mutex // guards everything below; held during Tick and Close

	state     ResponderState
	tr        transport.Transport
	peer      transport.ConnectionID
	started   bool
	lastTick  monotime.Time
	restartAt monotime.Time

	reply    [protocol.MinMessageSize]byte
	received *stats.RollingRate

	messagesReceived uint64
	lastSequence     uint32
	malformed        uint64
	droppedReplies   uint64
	buffered         int

	droppedLog   rate.Sometimes
	malformedLog rate.Sometimes
}

var _ Machine = &Responder{}

// NewResponder creates a new responder.
// newTransport is called every time the responder starts listening.
// The responder starts listening with the first call to Tick.
func NewResponder(newTransport TransportFactory, config *Config) (*Responder, error) {
	if newTransport == nil {
		return nil, &TransportError{Op: "create", Err: errNoTransportFactory}
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config, protocol.RoleResponder)
	r := &Responder{
		config:       config,
		newTransport: newTransport,
		logger:       ilog.WithComponent(config.Logger, ilog.ComponentResponder),
		tracer:       config.Tracer,
		peer:         transport.InvalidConnectionID,
		received:     stats.NewRollingRate(config.StatsWindow),
		droppedLog:   rate.Sometimes{Interval: time.Second},
		malformedLog: rate.Sometimes{Interval: time.Second},
	}
	r.publish()
	return r, nil
}

// Restart drops the current call, if any, and listens again after the restart delay.
func (r *Responder) Restart() {
	r.restartRequested.Store(true)
}

// Stats returns the snapshot taken at the end of the last tick.
func (r *Responder) Stats() ResponderStats {
	return *r.snapshot.Load()
}

// State returns the current state.
func (r *Responder) State() ResponderState {
	return r.snapshot.Load().State
}

// Tick advances the state machine to now.
func (r *Responder) Tick(now time.Time) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.state == ResponderStateReleased {
		return
	}
	t := monotime.FromTime(now)
	var elapsed time.Duration
	if r.started && t.After(r.lastTick) {
		elapsed = t.Sub(r.lastTick)
	}
	r.lastTick = t

	if r.restartRequested.Swap(false) && r.started {
		r.logger.Info("restart requested", "state", r.state)
		r.stop(t, ResponderStateIdle)
	}
	if !r.started {
		r.started = true
		r.start(t)
	} else if !r.restartAt.IsZero() && !t.Before(r.restartAt) {
		r.restartAt = 0
		r.setState(ResponderStateIdle)
		r.start(t)
	}

	published := r.received.Advance(elapsed)

	if r.tr != nil {
		for _, ev := range r.tr.Update() {
			r.handleEvent(ev, t)
			if r.tr == nil {
				break
			}
		}
	}

	if r.tr != nil && r.peer.IsValid() {
		r.buffered = r.tr.BufferedAmount(r.peer, true)
	} else {
		r.buffered = 0
	}
	r.publish()
	if published && r.tracer != nil && r.tracer.UpdatedResponderStats != nil {
		r.tracer.UpdatedResponderStats(*r.snapshot.Load())
	}
}

// Close releases the transport.
// The responder can't be used afterwards.
func (r *Responder) Close() error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.state == ResponderStateReleased {
		return nil
	}
	err := r.releaseTransport()
	r.restartAt = 0
	r.setState(ResponderStateReleased)
	r.publish()
	if r.tracer != nil && r.tracer.Close != nil {
		r.tracer.Close()
	}
	return err
}

func (r *Responder) start(t monotime.Time) {
	r.messagesReceived = 0
	r.lastSequence = 0
	r.malformed = 0
	r.droppedReplies = 0
	r.received.Reset()
	r.peer = transport.InvalidConnectionID

	if r.tracer != nil && r.tracer.StartedRun != nil {
		r.tracer.StartedRun(logging.RoleResponder)
	}
	tr, err := r.newTransport()
	if err != nil {
		r.logger.Warn("creating transport failed", "error", err)
		r.stop(t, ResponderStateListenFailed)
		return
	}
	r.tr = tr
	r.setState(ResponderStateRegistering)
	if err := tr.Configure(); err != nil {
		r.logger.Warn("configuring transport failed", "error", err)
		r.stop(t, ResponderStateListenFailed)
	}
}

func (r *Responder) handleEvent(ev transport.Event, t monotime.Time) {
	switch ev.Type {
	case transport.ConfigurationComplete:
		if r.state != ResponderStateRegistering {
			return
		}
		if err := r.tr.Listen(r.config.Address); err != nil {
			r.logger.Warn("listening failed", "address", r.config.Address, "error", err)
			r.stop(t, ResponderStateListenFailed)
		}
	case transport.ListeningReady:
		if r.state != ResponderStateRegistering {
			return
		}
		r.logger.Info("listening", "address", r.config.Address)
		r.setState(ResponderStateListening)
	case transport.ConfigurationFailed, transport.ListeningFailed:
		r.logger.Warn("listening failed", "address", r.config.Address, "event", ev.Type, "error", ev.Err)
		r.stop(t, ResponderStateListenFailed)
	case transport.CallAccepted:
		if r.state == ResponderStateConnected {
			r.logger.Warn("ignoring second call", "peer", ev.ConnectionID, "connected", r.peer)
			return
		}
		if r.state != ResponderStateListening {
			return
		}
		r.peer = ev.ConnectionID
		r.logger.Info("connected", "peer", ev.ConnectionID)
		r.setState(ResponderStateConnected)
	case transport.CallEnded, transport.ConnectionFailed:
		if ev.ConnectionID.IsValid() && r.peer.IsValid() && ev.ConnectionID != r.peer {
			return
		}
		r.logger.Info("call ended", "peer", r.peer, "event", ev.Type)
		r.stop(t, ResponderStateEnded)
	case transport.DataMessage:
		if r.state == ResponderStateConnected {
			r.handleMessage(ev.Data)
		}
	}
}

func (r *Responder) handleMessage(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		r.malformed++
		r.malformedLog.Do(func() {
			r.logger.Warn("dropping malformed message", "size", len(data), "error", err)
		})
		if r.tracer != nil && r.tracer.DroppedMalformedMessage != nil {
			r.tracer.DroppedMalformedMessage(logging.RoleResponder, ByteCount(len(data)))
		}
		return
	}
	r.messagesReceived++
	r.lastSequence = msg.Sequence
	r.received.Add(ByteCount(len(data)))
	if r.tracer != nil && r.tracer.ReceivedMessage != nil {
		r.tracer.ReceivedMessage(msg.Sequence, ByteCount(len(data)))
	}

	// Only the header is echoed. Acknowledgements always use the reliable channel.
	if !r.tr.Send(msg.Append(r.reply[:0]), true, r.peer) {
		r.droppedReplies++
		r.droppedLog.Do(func() {
			r.logger.Debug("send buffer full, dropping acknowledgement", "seq", msg.Sequence, "dropped", r.droppedReplies)
		})
		if r.tracer != nil && r.tracer.DroppedReply != nil {
			r.tracer.DroppedReply(msg.Sequence)
		}
	}
}

// stop releases the transport and schedules a restart.
func (r *Responder) stop(t monotime.Time, state ResponderState) {
	if err := r.releaseTransport(); err != nil {
		r.logger.Debug("closing transport failed", "error", err)
	}
	r.setState(state)
	r.restartAt = t.Add(r.config.RestartDelay)
}

func (r *Responder) releaseTransport() error {
	if r.tr == nil {
		return nil
	}
	err := r.tr.Close()
	r.tr = nil
	r.peer = transport.InvalidConnectionID
	return err
}

func (r *Responder) setState(state ResponderState) {
	if r.state == state {
		return
	}
	old := r.state
	r.state = state
	r.logger.Debug("state changed", "from", old, "to", state)
	if r.tracer != nil && r.tracer.ChangedResponderState != nil {
		r.tracer.ChangedResponderState(old, state)
	}
}

func (r *Responder) publish() {
	r.snapshot.Store(&ResponderStats{
		State:            r.state,
		Active:           r.state == ResponderStateListening || r.state == ResponderStateConnected,
		Connected:        r.state == ResponderStateConnected,
		Peer:             r.peer,
		MessagesReceived: r.messagesReceived,
		LastSequence:     r.lastSequence,
		Malformed:        r.malformed,
		DroppedReplies:   r.droppedReplies,
		AvgReceived:      r.received.Rate(),
		BufferedAmount:   r.buffered,
	})
}
