package dcbench

import (
	"errors"
	"testing"
	"time"

	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/internal/wire"
	"github.com/quic-go/dcbench/logging"
	"github.com/quic-go/dcbench/transport"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testPeer transport.ConnectionID = 7

// senderHarness drives a Sender connected to a MockTransport.
type senderHarness struct {
	t       *testing.T
	sender  *Sender
	tr      *MockTransport
	now     time.Time
	updates [][]transport.Event

	sent     [][]byte
	replied  int
	buffered int
	reject   bool
	closed   int
}

func newSenderHarness(t *testing.T, config *Config) *senderHarness {
	t.Helper()
	if config.Logger == nil {
		config.Logger = ilog.Discard()
	}
	h := &senderHarness{t: t, now: time.Now()}
	h.tr = NewMockTransport(gomock.NewController(t))
	reliable := !config.Unreliable
	h.tr.EXPECT().Update().DoAndReturn(h.nextUpdate).AnyTimes()
	h.tr.EXPECT().Configure().DoAndReturn(func() error {
		h.push(transport.Event{Type: transport.ConfigurationComplete, ConnectionID: transport.InvalidConnectionID})
		return nil
	})
	h.tr.EXPECT().Call("dcbench").DoAndReturn(func(string) error {
		h.push(transport.Event{Type: transport.CallAccepted, ConnectionID: testPeer})
		return nil
	})
	h.tr.EXPECT().BufferedAmount(testPeer, reliable).DoAndReturn(func(transport.ConnectionID, bool) int {
		return h.buffered
	}).AnyTimes()
	h.tr.EXPECT().Send(gomock.Any(), reliable, testPeer).DoAndReturn(func(b []byte, _ bool, _ transport.ConnectionID) bool {
		if h.reject {
			return false
		}
		h.sent = append(h.sent, append([]byte(nil), b...))
		return true
	}).AnyTimes()
	h.tr.EXPECT().Close().DoAndReturn(func() error {
		h.closed++
		return nil
	}).AnyTimes()

	s, err := NewSender(func() (transport.Transport, error) { return h.tr, nil }, config)
	require.NoError(t, err)
	h.sender = s

	h.tick(0)
	require.Equal(t, SenderStateAwaitingConnection, s.State())
	h.tick(0)
	require.Equal(t, SenderStateActive, s.State())
	return h
}

func (h *senderHarness) push(events ...transport.Event) {
	h.updates = append(h.updates, events)
}

func (h *senderHarness) nextUpdate() []transport.Event {
	if len(h.updates) == 0 {
		return nil
	}
	events := h.updates[0]
	h.updates = h.updates[1:]
	return events
}

func (h *senderHarness) tick(d time.Duration) {
	h.now = h.now.Add(d)
	h.sender.Tick(h.now)
}

// reply queues acknowledgements for the given sequence numbers, in this order,
// to be delivered on the next tick.
func (h *senderHarness) reply(seqs ...uint32) {
	events := make([]transport.Event, 0, len(seqs))
	for _, seq := range seqs {
		require.GreaterOrEqual(h.t, len(h.sent), int(seq))
		events = append(events, transport.Event{
			Type:         transport.DataMessage,
			ConnectionID: testPeer,
			Data:         append([]byte(nil), h.sent[seq-1][:8]...),
			Reliable:     true,
		})
	}
	h.push(events...)
}

// replyAll acknowledges all messages not acknowledged yet.
func (h *senderHarness) replyAll() {
	var seqs []uint32
	for i := h.replied; i < len(h.sent); i++ {
		seqs = append(seqs, uint32(i+1))
	}
	h.replied = len(h.sent)
	h.reply(seqs...)
}

func TestSenderStateTransitions(t *testing.T) {
	var states []SenderState
	var runs []logging.Role
	config := &Config{Tracer: &logging.Tracer{
		ChangedSenderState: func(_, new SenderState) { states = append(states, new) },
		StartedRun:         func(r logging.Role) { runs = append(runs, r) },
	}}
	h := newSenderHarness(t, config)
	require.Equal(t, []SenderState{
		SenderStateAwaitingConfiguration,
		SenderStateAwaitingConnection,
		SenderStateActive,
	}, states)
	require.Equal(t, []logging.Role{logging.RoleSender}, runs)
	stats := h.sender.Stats()
	require.Equal(t, uint64(1), stats.Run)
	require.Equal(t, ByteCount(131072), stats.TargetRate)
	require.False(t, stats.Unreliable)
	require.NoError(t, h.sender.Err())
}

func TestSenderSendsMessages(t *testing.T) {
	var traced []uint32
	config := &Config{
		MessageSize: 100,
		TargetRate:  10000, // one message every 10ms
		Tracer: &logging.Tracer{
			SentMessage: func(seq uint32, size ByteCount) {
				require.Equal(t, ByteCount(100), size)
				traced = append(traced, seq)
			},
		},
	}
	h := newSenderHarness(t, config)
	h.tick(55 * time.Millisecond)
	require.Len(t, h.sent, 5)
	require.Equal(t, []uint32{1, 2, 3, 4, 5}, traced)
	for i, b := range h.sent {
		require.Len(t, b, 100)
		msg, err := wire.Decode(b)
		require.NoError(t, err)
		require.Equal(t, uint32(i+1), msg.Sequence)
		require.Equal(t, uint32(55), msg.Timestamp)
	}
	// the filler is identical for all messages
	require.Equal(t, h.sent[0][8:], h.sent[4][8:])

	stats := h.sender.Stats()
	require.Equal(t, uint64(5), stats.MessagesSent)
	require.Equal(t, 5, stats.Outstanding)
	require.Equal(t, 55*time.Millisecond, stats.RunTime)
}

func TestSenderAcknowledgements(t *testing.T) {
	var latencies []time.Duration
	config := &Config{
		MessageSize: 100,
		TargetRate:  10000,
		Tracer: &logging.Tracer{
			AcknowledgedMessage: func(_ uint32, latency time.Duration) { latencies = append(latencies, latency) },
		},
	}
	h := newSenderHarness(t, config)
	h.tick(35 * time.Millisecond)
	require.Len(t, h.sent, 3)
	h.replyAll()
	h.tick(42 * time.Millisecond)

	stats := h.sender.Stats()
	require.Equal(t, uint64(3), stats.MessagesReceived)
	require.Zero(t, stats.OutOfOrder)
	require.Zero(t, stats.UnexpectedAcks)
	require.Equal(t, 42*time.Millisecond, stats.Latency)
	require.Equal(t, []time.Duration{42 * time.Millisecond, 42 * time.Millisecond, 42 * time.Millisecond}, latencies)
	// messages sent during this tick are still outstanding
	require.Equal(t, len(h.sent)-3, stats.Outstanding)
}

// Scenario D: a reliable transport delivers acknowledgements 1, 2, 4, 3.
func TestSenderReliableOrderingViolation(t *testing.T) {
	var violations [][2]uint32
	var states []SenderState
	config := &Config{
		MessageSize: 8,
		TargetRate:  800,
		Tracer: &logging.Tracer{
			ProtocolViolation:  func(expected, received uint32) { violations = append(violations, [2]uint32{expected, received}) },
			ChangedSenderState: func(_, new SenderState) { states = append(states, new) },
		},
	}
	h := newSenderHarness(t, config)
	h.tick(45 * time.Millisecond)
	require.Len(t, h.sent, 4)

	h.reply(1, 2, 4, 3)
	h.tick(0)

	stats := h.sender.Stats()
	require.Equal(t, SenderStateHalted, stats.State)
	require.Equal(t, uint64(2), stats.OutOfOrder)
	require.Equal(t, uint64(4), stats.MessagesReceived)
	require.Zero(t, stats.UnexpectedAcks)
	require.Zero(t, stats.Outstanding)
	var perr *ProtocolViolationError
	require.ErrorAs(t, h.sender.Err(), &perr)
	require.Equal(t, &ProtocolViolationError{Expected: 3, Received: 4}, perr)
	require.Equal(t, [][2]uint32{{3, 4}}, violations)
	require.Equal(t, SenderStateHalted, states[len(states)-1])

	// nothing is sent while halted, and the sender doesn't restart on its own
	h.tick(10 * time.Second)
	require.Len(t, h.sent, 4)
	require.Equal(t, SenderStateHalted, h.sender.State())
	require.Zero(t, h.closed)
}

func TestSenderUnreliableOutOfOrder(t *testing.T) {
	config := &Config{MessageSize: 8, TargetRate: 800, Unreliable: true}
	h := newSenderHarness(t, config)
	h.tick(45 * time.Millisecond)
	require.Len(t, h.sent, 4)
	h.reply(2, 1, 3, 4)
	h.tick(0)

	stats := h.sender.Stats()
	require.Equal(t, SenderStateActive, stats.State)
	require.True(t, stats.Unreliable)
	// expected is always the last matched sequence + 1
	require.Equal(t, uint64(3), stats.OutOfOrder)
	require.Equal(t, uint64(4), stats.MessagesReceived)
	require.Zero(t, stats.Outstanding)
	require.NoError(t, stats.Err)
}

func TestSenderUnexpectedAcknowledgement(t *testing.T) {
	var unexpected []uint32
	config := &Config{
		MessageSize: 8,
		TargetRate:  800,
		Unreliable:  true,
		Tracer: &logging.Tracer{
			UnexpectedAcknowledgement: func(seq uint32) { unexpected = append(unexpected, seq) },
		},
	}
	h := newSenderHarness(t, config)
	h.tick(15 * time.Millisecond)
	require.Len(t, h.sent, 1)
	h.reply(1, 1)
	h.push(transport.Event{Type: transport.DataMessage, ConnectionID: testPeer, Data: []byte{99, 0, 0, 0, 0, 0, 0, 0}})
	h.tick(0)
	h.tick(0)

	stats := h.sender.Stats()
	require.Equal(t, uint64(2), stats.UnexpectedAcks)
	require.Equal(t, []uint32{1, 99}, unexpected)
	require.Equal(t, uint64(3), stats.MessagesReceived)
	require.Equal(t, uint64(2), stats.OutOfOrder)
}

func TestSenderMalformedReply(t *testing.T) {
	var malformed []ByteCount
	config := &Config{Tracer: &logging.Tracer{
		DroppedMalformedMessage: func(r logging.Role, size ByteCount) {
			require.Equal(t, logging.RoleSender, r)
			malformed = append(malformed, size)
		},
	}}
	h := newSenderHarness(t, config)
	h.push(transport.Event{Type: transport.DataMessage, ConnectionID: testPeer, Data: []byte{1, 2, 3, 4}})
	h.tick(0)
	stats := h.sender.Stats()
	require.Equal(t, uint64(1), stats.Malformed)
	require.Zero(t, stats.MessagesReceived)
	require.Zero(t, stats.OutOfOrder)
	require.Equal(t, SenderStateActive, stats.State)
	require.Equal(t, []ByteCount{4}, malformed)
}

// Scenario C: message 5 is never acknowledged.
func TestSenderTimeout(t *testing.T) {
	var lost []uint32
	config := &Config{
		MessageSize:         8,
		TargetRate:          800,
		ConfirmationTimeout: 100 * time.Millisecond,
		Tracer: &logging.Tracer{
			LostMessage: func(seq uint32) { lost = append(lost, seq) },
		},
	}
	h := newSenderHarness(t, config)
	h.tick(55 * time.Millisecond)
	require.Len(t, h.sent, 5)
	h.sender.SetTargetRate(0)
	h.reply(1, 2, 3, 4)
	h.tick(0)
	require.Equal(t, 1, h.sender.Stats().Outstanding)

	h.tick(100 * time.Millisecond)
	require.Zero(t, h.sender.Stats().MessagesLost)
	require.Empty(t, lost)
	h.tick(time.Millisecond)
	stats := h.sender.Stats()
	require.Equal(t, uint64(1), stats.MessagesLost)
	require.Zero(t, stats.Outstanding)
	require.Equal(t, []uint32{5}, lost)
	require.Len(t, h.sent, 5)

	// a late acknowledgement is counted as unexpected
	h.reply(5)
	h.tick(0)
	stats = h.sender.Stats()
	require.Equal(t, uint64(1), stats.UnexpectedAcks)
	require.Equal(t, uint64(1), stats.MessagesLost)
}

func TestSenderBackpressure(t *testing.T) {
	var paused []ByteCount
	config := &Config{Tracer: &logging.Tracer{
		PausedSending: func(buffered ByteCount) { paused = append(paused, buffered) },
	}}
	h := newSenderHarness(t, config)
	h.buffered = 256 << 10
	for i := 1; i <= 10; i++ {
		h.tick(16 * time.Millisecond)
		stats := h.sender.Stats()
		require.True(t, stats.Paused)
		require.Equal(t, uint64(i), stats.BufferFull)
		require.Equal(t, 256<<10, stats.BufferedAmount)
	}
	require.Empty(t, h.sent)
	require.Len(t, paused, 10)
	require.Equal(t, ByteCount(256<<10), paused[0])

	// the pause ends as soon as the buffer drains
	h.buffered = 0
	h.tick(16 * time.Millisecond)
	require.False(t, h.sender.Stats().Paused)
	require.Len(t, h.sent, 2)
}

func TestSenderRejectedSend(t *testing.T) {
	config := &Config{MessageSize: 100, TargetRate: 10000}
	h := newSenderHarness(t, config)
	h.reject = true
	h.tick(100 * time.Millisecond)
	stats := h.sender.Stats()
	require.True(t, stats.Paused)
	require.Equal(t, uint64(1), stats.BufferFull)
	require.Zero(t, stats.MessagesSent)
	require.Zero(t, stats.Outstanding)

	// sequence numbers are not consumed by rejected sends
	h.reject = false
	h.tick(15 * time.Millisecond)
	require.Len(t, h.sent, 1)
	msg, err := wire.Decode(h.sent[0])
	require.NoError(t, err)
	require.Equal(t, uint32(1), msg.Sequence)
}

func TestSenderSetTargetRate(t *testing.T) {
	config := &Config{MessageSize: 100, TargetRate: 1000}
	h := newSenderHarness(t, config)
	h.tick(101 * time.Millisecond)
	require.Len(t, h.sent, 1)
	h.sender.SetTargetRate(10000)
	h.tick(100 * time.Millisecond)
	require.Len(t, h.sent, 11)
	require.Equal(t, ByteCount(10000), h.sender.Stats().TargetRate)

	h.sender.SetTargetRate(-1)
	h.tick(time.Second)
	require.Len(t, h.sent, 11)
	require.Zero(t, h.sender.Stats().TargetRate)
}

func TestSenderStatsWindow(t *testing.T) {
	var published []SenderStats
	config := &Config{
		MessageSize: 100,
		TargetRate:  10000,
		StatsWindow: time.Second,
		Tracer: &logging.Tracer{
			UpdatedSenderStats: func(s SenderStats) { published = append(published, s) },
		},
	}
	h := newSenderHarness(t, config)
	for i := 0; i < 10; i++ {
		h.tick(100 * time.Millisecond)
		h.replyAll()
		if i < 9 {
			require.Zero(t, h.sender.Stats().AvgSent)
		}
	}
	require.Len(t, published, 1)
	stats := published[0]
	// the window contains the messages sent during the first 9 ticks
	require.InDelta(t, 8900, stats.AvgSent, 0.001)
	// confirmed bytes count the size of the data message, not of the acknowledgement
	require.InDelta(t, 7900, stats.AvgConfirmed, 0.001)
	require.InDelta(t, 79*8, stats.AvgReceived, 0.001)
	require.Equal(t, stats.AvgSent, h.sender.Stats().AvgSent)
}

func TestSenderCallEndedRestarts(t *testing.T) {
	var runs int
	config := &Config{MessageSize: 100, TargetRate: 10000, Tracer: &logging.Tracer{
		StartedRun: func(logging.Role) { runs++ },
	}}
	h := newSenderHarness(t, config)
	h.tick(55 * time.Millisecond)
	require.Equal(t, 5, h.sender.Stats().Outstanding)

	h.push(transport.Event{Type: transport.CallEnded, ConnectionID: testPeer})
	h.tick(0)
	stats := h.sender.Stats()
	require.Equal(t, SenderStateEnded, stats.State)
	require.Zero(t, stats.Outstanding)
	require.Zero(t, stats.BufferedAmount)
	require.Equal(t, 1, h.closed)

	h.tick(1499 * time.Millisecond)
	require.Equal(t, SenderStateEnded, h.sender.State())
	require.Len(t, h.sent, 5)

	h.tr.EXPECT().Configure()
	h.tick(time.Millisecond)
	stats = h.sender.Stats()
	require.Equal(t, SenderStateAwaitingConfiguration, stats.State)
	require.Equal(t, uint64(2), stats.Run)
	require.Zero(t, stats.MessagesSent)
	require.Equal(t, 2, runs)
}

func TestSenderRestartFromHalted(t *testing.T) {
	config := &Config{MessageSize: 8, TargetRate: 800, RestartDelay: time.Second}
	h := newSenderHarness(t, config)
	h.tick(25 * time.Millisecond)
	h.reply(2)
	h.tick(0)
	require.Equal(t, SenderStateHalted, h.sender.State())

	h.sender.Restart()
	h.tick(0)
	require.Equal(t, SenderStateIdle, h.sender.State())
	require.Equal(t, 1, h.closed)

	h.tr.EXPECT().Configure()
	h.tick(time.Second)
	stats := h.sender.Stats()
	require.Equal(t, SenderStateAwaitingConfiguration, stats.State)
	require.NoError(t, stats.Err)
	require.Zero(t, stats.OutOfOrder)
}

func TestSenderHaltedStaysHaltedWhenCallEnds(t *testing.T) {
	config := &Config{MessageSize: 8, TargetRate: 800}
	h := newSenderHarness(t, config)
	h.tick(25 * time.Millisecond)
	h.reply(2)
	h.tick(0)
	h.push(transport.Event{Type: transport.CallEnded, ConnectionID: testPeer})
	h.tick(0)
	require.Equal(t, SenderStateHalted, h.sender.State())
	require.Equal(t, 1, h.closed)
	h.tick(time.Minute)
	require.Equal(t, SenderStateHalted, h.sender.State())
	var perr *ProtocolViolationError
	require.ErrorAs(t, h.sender.Err(), &perr)
}

func TestSenderConfigurationFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	tr := NewMockTransport(mockCtrl)
	testErr := errors.New("test error")
	tr.EXPECT().Configure().Return(testErr)
	tr.EXPECT().Close()

	var created int
	s, err := NewSender(func() (transport.Transport, error) {
		created++
		if created > 1 {
			return nil, errors.New("no more transports")
		}
		return tr, nil
	}, &Config{Logger: ilog.Discard()})
	require.NoError(t, err)

	now := time.Now()
	s.Tick(now)
	require.Equal(t, SenderStateFailed, s.State())
	var terr *TransportError
	require.ErrorAs(t, s.Err(), &terr)
	require.Equal(t, "configure", terr.Op)
	require.ErrorIs(t, s.Err(), testErr)

	s.Tick(now.Add(1499 * time.Millisecond))
	require.Equal(t, 1, created)
	s.Tick(now.Add(1500 * time.Millisecond))
	require.Equal(t, 2, created)
	require.Equal(t, SenderStateFailed, s.State())
	require.ErrorAs(t, s.Err(), &terr)
	require.Equal(t, "create", terr.Op)
	require.Equal(t, uint64(2), s.Stats().Run)
}

func TestSenderConnectionFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	tr := NewMockTransport(mockCtrl)
	var updates [][]transport.Event
	tr.EXPECT().Update().DoAndReturn(func() []transport.Event {
		if len(updates) == 0 {
			return nil
		}
		events := updates[0]
		updates = updates[1:]
		return events
	}).AnyTimes()
	tr.EXPECT().Configure().DoAndReturn(func() error {
		updates = append(updates, []transport.Event{{Type: transport.ConfigurationComplete}})
		return nil
	})
	tr.EXPECT().Call("bench").DoAndReturn(func(string) error {
		updates = append(updates, []transport.Event{{Type: transport.ConnectionFailed, ConnectionID: transport.InvalidConnectionID}})
		return nil
	})
	tr.EXPECT().Close()

	s, err := NewSender(func() (transport.Transport, error) { return tr, nil }, &Config{
		Address: "bench",
		Logger:  ilog.Discard(),
	})
	require.NoError(t, err)
	now := time.Now()
	s.Tick(now)
	require.Equal(t, SenderStateAwaitingConnection, s.State())
	s.Tick(now)
	require.Equal(t, SenderStateFailed, s.State())
	var terr *TransportError
	require.ErrorAs(t, s.Err(), &terr)
	require.Equal(t, "connect", terr.Op)
}

func TestSenderClose(t *testing.T) {
	var closed int
	var states []SenderState
	config := &Config{Tracer: &logging.Tracer{
		Close:              func() { closed++ },
		ChangedSenderState: func(_, new SenderState) { states = append(states, new) },
	}}
	h := newSenderHarness(t, config)
	require.NoError(t, h.sender.Close())
	require.Equal(t, SenderStateReleased, h.sender.State())
	require.Equal(t, 1, h.closed)
	require.Equal(t, 1, closed)
	require.Equal(t, SenderStateReleased, states[len(states)-1])

	// restarts don't fire into a released sender
	h.sender.Restart()
	h.tick(time.Minute)
	require.Equal(t, SenderStateReleased, h.sender.State())
	require.NoError(t, h.sender.Close())
	require.Equal(t, 1, h.closed)
	require.Equal(t, 1, closed)
}

func TestNewSenderInvalidConfig(t *testing.T) {
	factory := func() (transport.Transport, error) { return nil, errors.New("unused") }
	_, err := NewSender(factory, &Config{MessageSize: 4})
	require.ErrorContains(t, err, "Config.MessageSize")
	_, err = NewSender(nil, nil)
	require.Error(t, err)
}
