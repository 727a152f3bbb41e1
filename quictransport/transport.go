// Package quictransport runs benchmarks over QUIC.
//
// Reliable messages are sent on a unidirectional stream, each message prefixed
// with its length encoded as a QUIC variable-length integer.
// Unreliable messages are sent as DATAGRAM frames, one message per frame.
package quictransport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/quic-go/dcbench/internal/eventqueue"
	"github.com/quic-go/dcbench/internal/protocol"
	"github.com/quic-go/dcbench/internal/sendqueue"
	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/transport"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"
	"golang.org/x/time/rate"
)

// DefaultMaxQueuedBytes is the default limit for each outbound queue.
const DefaultMaxQueuedBytes = 4 << 20

const defaultDialTimeout = 10 * time.Second

const (
	errorCodeNoError  quic.ApplicationErrorCode = 0
	errorCodeBusy     quic.ApplicationErrorCode = 0x1
	errorCodeProtocol quic.ApplicationErrorCode = 0x2
)

var (
	errNotConfigured     = errors.New("transport not configured")
	errAlreadyConfigured = errors.New("transport already configured")
	errAlreadyListening  = errors.New("already listening")
	errCallInProgress    = errors.New("call already in progress")
)

// Config configures a QUIC transport.
type Config struct {
	// TLSConfig is used for listening and calling.
	// If not set, listeners use a self-signed certificate and callers skip verification.
	TLSConfig *tls.Config
	// QUICConfig is cloned for every connection. Datagram support is always enabled.
	QUICConfig *quic.Config
	// MaxQueuedBytes limits each of the two outbound queues.
	// If not set, DefaultMaxQueuedBytes is used.
	MaxQueuedBytes int
	// DialTimeout limits how long Call waits for the handshake to complete.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (c *Config) quicConfig() *quic.Config {
	conf := &quic.Config{}
	if c.QUICConfig != nil {
		conf = c.QUICConfig.Clone()
	}
	conf.EnableDatagrams = true
	if conf.KeepAlivePeriod == 0 {
		conf.KeepAlivePeriod = 5 * time.Second
	}
	return conf
}

func populateConfig(config *Config) *Config {
	c := &Config{}
	if config != nil {
		*c = *config
	}
	if c.MaxQueuedBytes == 0 {
		c.MaxQueuedBytes = DefaultMaxQueuedBytes
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.Logger == nil {
		c.Logger = ilog.DefaultLogger()
	}
	return c
}

type peer struct {
	id   transport.ConnectionID
	conn *quic.Conn

	reliable   *sendqueue.Queue
	unreliable *sendqueue.Queue
}

// A Transport is a benchmark transport using a single QUIC connection.
// A listening Transport accepts one connection at a time. Further connection
// attempts are closed with a "busy" application error.
type Transport struct {
	config *Config
	logger *slog.Logger
	events *eventqueue.Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mx         sync.Mutex
	configured bool
	calling    bool
	closed     bool
	listener   *quic.Listener
	peer       *peer
	nextID     transport.ConnectionID

	tooLargeLog rate.Sometimes
}

var _ transport.Transport = &Transport{}

// New creates a new QUIC transport.
func New(config *Config) *Transport {
	config = populateConfig(config)
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		config:      config,
		logger:      ilog.WithComponent(config.Logger, ilog.ComponentTransport),
		events:      eventqueue.New(eventqueue.DefaultCapacity),
		ctx:         ctx,
		cancel:      cancel,
		tooLargeLog: rate.Sometimes{Interval: time.Second},
	}
}

// Factory returns a transport.Factory creating transports with this configuration.
func Factory(config *Config) transport.Factory {
	return func() (transport.Transport, error) { return New(config), nil }
}

func (t *Transport) Configure() error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return net.ErrClosed
	}
	if t.configured {
		return errAlreadyConfigured
	}
	t.configured = true
	t.events.TryPush(transport.Event{Type: transport.ConfigurationComplete, ConnectionID: transport.InvalidConnectionID})
	return nil
}

// Listen binds a UDP socket to address.
// Binding errors are reported as a ListeningFailed event.
func (t *Transport) Listen(address string) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return net.ErrClosed
	}
	if !t.configured {
		return errNotConfigured
	}
	if t.listener != nil {
		return errAlreadyListening
	}
	tlsConf := t.config.TLSConfig
	if tlsConf == nil {
		var err error
		tlsConf, err = GenerateTLSConfig()
		if err != nil {
			t.listenFailed(address, err)
			return nil
		}
	}
	ln, err := quic.ListenAddr(address, tlsConf, t.config.quicConfig())
	if err != nil {
		t.listenFailed(address, err)
		return nil
	}
	t.listener = ln
	t.logger.Info("listening", "address", ln.Addr())
	t.events.TryPush(transport.Event{Type: transport.ListeningReady, ConnectionID: transport.InvalidConnectionID})

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acceptConns(ln)
	}()
	return nil
}

func (t *Transport) listenFailed(address string, err error) {
	t.logger.Warn("listening failed", "address", address, "error", err)
	t.events.TryPush(transport.Event{
		Type:         transport.ListeningFailed,
		ConnectionID: transport.InvalidConnectionID,
		Err:          err,
	})
}

// Addr returns the address the transport is listening on.
// It returns nil if the transport is not listening.
func (t *Transport) Addr() net.Addr {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *Transport) acceptConns(ln *quic.Listener) {
	for {
		conn, err := ln.Accept(t.ctx)
		if err != nil {
			return
		}
		t.mx.Lock()
		if t.closed || t.peer != nil {
			t.mx.Unlock()
			t.logger.Info("rejecting connection", "remote", conn.RemoteAddr())
			conn.CloseWithError(errorCodeBusy, "busy")
			continue
		}
		p := t.addPeer(conn)
		t.mx.Unlock()
		t.logger.Info("accepted connection", "peer", p.id, "remote", conn.RemoteAddr())
		t.startPeer(p)
	}
}

// Call dials address in the background.
// The result is reported as a CallAccepted or ConnectionFailed event.
func (t *Transport) Call(address string) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.closed {
		return net.ErrClosed
	}
	if !t.configured {
		return errNotConfigured
	}
	if t.calling || t.peer != nil {
		return errCallInProgress
	}
	t.calling = true
	tlsConf := t.config.TLSConfig
	if tlsConf == nil {
		tlsConf = ClientTLSConfig()
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.config.DialTimeout)
		defer cancel()
		conn, err := quic.DialAddr(ctx, address, tlsConf, t.config.quicConfig())

		t.mx.Lock()
		t.calling = false
		if err != nil {
			closed := t.closed
			t.mx.Unlock()
			if closed {
				return
			}
			t.logger.Warn("call failed", "address", address, "error", err)
			t.events.TryPush(transport.Event{
				Type:         transport.ConnectionFailed,
				ConnectionID: transport.InvalidConnectionID,
				Err:          err,
			})
			return
		}
		if t.closed {
			t.mx.Unlock()
			conn.CloseWithError(errorCodeNoError, "")
			return
		}
		p := t.addPeer(conn)
		t.mx.Unlock()
		t.logger.Info("call accepted", "peer", p.id, "remote", conn.RemoteAddr())
		t.startPeer(p)
	}()
	return nil
}

// addPeer must be called with t.mx held.
func (t *Transport) addPeer(conn *quic.Conn) *peer {
	p := &peer{
		id:         t.nextID,
		conn:       conn,
		reliable:   sendqueue.New(t.config.MaxQueuedBytes),
		unreliable: sendqueue.New(t.config.MaxQueuedBytes),
	}
	t.nextID++
	t.peer = p
	return p
}

// startPeer reports the new call and starts the peer's goroutines.
// It must be called without t.mx held, by a goroutine tracked by t.wg.
func (t *Transport) startPeer(p *peer) {
	// CallAccepted is queued before any DataMessage of this connection.
	// Push blocks while the queue is full, and fails once Close was called.
	if !t.events.Push(transport.Event{Type: transport.CallAccepted, ConnectionID: p.id}) {
		return
	}

	t.wg.Add(5)
	go func() {
		defer t.wg.Done()
		t.writeStream(p)
	}()
	go func() {
		defer t.wg.Done()
		t.writeDatagrams(p)
	}()
	go func() {
		defer t.wg.Done()
		t.readStream(p)
	}()
	go func() {
		defer t.wg.Done()
		t.readDatagrams(p)
	}()
	go func() {
		defer t.wg.Done()
		t.monitor(p)
	}()
}

func (t *Transport) writeStream(p *peer) {
	str, err := p.conn.OpenUniStream()
	if err != nil {
		t.logger.Debug("opening stream failed", "peer", p.id, "error", err)
		p.reliable.Close()
		return
	}
	var buf []byte
	err = p.reliable.Run(sendqueue.WriterFunc(func(b []byte) error {
		buf = quicvarint.Append(buf[:0], uint64(len(b)))
		buf = append(buf, b...)
		_, err := str.Write(buf)
		return err
	}))
	if errors.Is(err, sendqueue.ErrClosed) {
		str.Close()
		return
	}
	t.logger.Debug("writing to stream failed", "peer", p.id, "error", err)
}

func (t *Transport) writeDatagrams(p *peer) {
	err := p.unreliable.Run(sendqueue.WriterFunc(func(b []byte) error {
		err := p.conn.SendDatagram(b)
		var tooLarge *quic.DatagramTooLargeError
		if errors.As(err, &tooLarge) {
			t.tooLargeLog.Do(func() {
				t.logger.Warn("dropping message larger than a datagram", "size", len(b), "max", tooLarge.MaxDatagramPayloadSize)
			})
			return nil
		}
		return err
	}))
	if !errors.Is(err, sendqueue.ErrClosed) {
		t.logger.Debug("sending datagram failed", "peer", p.id, "error", err)
	}
}

func (t *Transport) readStream(p *peer) {
	str, err := p.conn.AcceptUniStream(p.conn.Context())
	if err != nil {
		return
	}
	r := bufio.NewReader(str)
	for {
		l, err := quicvarint.Read(r)
		if err != nil {
			return
		}
		if l > protocol.MaxMessageSize {
			t.logger.Warn("peer sent oversized message", "peer", p.id, "size", l)
			p.conn.CloseWithError(errorCodeProtocol, fmt.Sprintf("message too large: %d bytes", l))
			return
		}
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return
		}
		if !t.events.Push(transport.Event{Type: transport.DataMessage, ConnectionID: p.id, Data: b, Reliable: true}) {
			return
		}
	}
}

func (t *Transport) readDatagrams(p *peer) {
	for {
		b, err := p.conn.ReceiveDatagram(p.conn.Context())
		if err != nil {
			return
		}
		if !t.events.Push(transport.Event{Type: transport.DataMessage, ConnectionID: p.id, Data: b}) {
			return
		}
	}
}

// monitor reports the end of the connection.
func (t *Transport) monitor(p *peer) {
	<-p.conn.Context().Done()
	p.reliable.Close()
	p.unreliable.Close()

	t.mx.Lock()
	if t.peer == p {
		t.peer = nil
	}
	closed := t.closed
	t.mx.Unlock()
	if closed {
		return
	}

	err := context.Cause(p.conn.Context())
	ev := transport.Event{Type: transport.ConnectionFailed, ConnectionID: p.id, Err: err}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == errorCodeNoError {
		ev.Type = transport.CallEnded
		ev.Err = nil
	}
	t.logger.Info("connection closed", "peer", p.id, "event", ev.Type, "error", err)
	t.events.Push(ev)
}

func (t *Transport) getPeer(id transport.ConnectionID) *peer {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.peer == nil || t.peer.id != id {
		return nil
	}
	return t.peer
}

// Send queues a copy of payload.
// Messages larger than a DATAGRAM frame are dropped when sent unreliably.
func (t *Transport) Send(payload []byte, reliable bool, id transport.ConnectionID) bool {
	if len(payload) > protocol.MaxMessageSize {
		return false
	}
	p := t.getPeer(id)
	if p == nil {
		return false
	}
	if reliable {
		return p.reliable.Send(payload)
	}
	return p.unreliable.Send(payload)
}

func (t *Transport) BufferedAmount(id transport.ConnectionID, reliable bool) int {
	p := t.getPeer(id)
	if p == nil {
		return 0
	}
	if reliable {
		return p.reliable.Buffered()
	}
	return p.unreliable.Buffered()
}

func (t *Transport) Update() []transport.Event {
	return t.events.Drain()
}

// Close closes the connection and the listener.
// The peer receives a CallEnded event.
func (t *Transport) Close() error {
	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		return nil
	}
	t.closed = true
	ln := t.listener
	p := t.peer
	t.peer = nil
	t.mx.Unlock()

	t.cancel()
	t.events.Close()
	if p != nil {
		p.reliable.Close()
		p.unreliable.Close()
		p.conn.CloseWithError(errorCodeNoError, "")
	}
	var err error
	if ln != nil {
		err = ln.Close()
	}
	t.wg.Wait()
	return err
}
