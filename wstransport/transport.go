// Package wstransport runs benchmarks over a WebSocket connection.
//
// Every message is sent as a single binary WebSocket message. Since WebSockets
// run over TCP, all messages are delivered reliably and in order, no matter
// which mode the sender asks for.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quic-go/dcbench/internal/eventqueue"
	"github.com/quic-go/dcbench/internal/protocol"
	"github.com/quic-go/dcbench/internal/sendqueue"
	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/transport"

	"github.com/conduitio/bwlimit"
	"github.com/gorilla/websocket"
)

const (
	// DefaultPath is the HTTP path the listener upgrades connections on.
	DefaultPath = "/dcbench"
	// DefaultMaxQueuedBytes is the default limit of the outbound queue.
	DefaultMaxQueuedBytes = 4 << 20

	defaultDialTimeout = 10 * time.Second
	closeTimeout       = time.Second
)

var (
	errNotConfigured     = errors.New("transport not configured")
	errAlreadyConfigured = errors.New("transport already configured")
	errAlreadyListening  = errors.New("already listening")
	errCallInProgress    = errors.New("call already in progress")
)

// Config configures a WebSocket transport.
type Config struct {
	// Path is the HTTP path used for the upgrade.
	Path string
	// ReadLimit and WriteLimit limit the bandwidth of accepted connections, in bytes/s.
	// They emulate a slow uplink or downlink of the listening side. 0 means unlimited.
	ReadLimit  int
	WriteLimit int
	// MaxQueuedBytes limits the outbound queue.
	MaxQueuedBytes int
	// DialTimeout limits how long Call waits for the upgrade to complete.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func populateConfig(config *Config) *Config {
	c := &Config{}
	if config != nil {
		*c = *config
	}
	if c.Path == "" {
		c.Path = DefaultPath
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
	id    transport.ConnectionID
	conn  *websocket.Conn
	queue *sendqueue.Queue

	writerDone chan struct{}
}

// A Transport is a benchmark transport using a single WebSocket connection.
// A listening Transport accepts one connection at a time and answers further
// upgrade requests with 503 Service Unavailable.
type Transport struct {
	config *Config
	logger *slog.Logger
	events *eventqueue.Queue

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mx         sync.Mutex
	configured bool
	calling    bool
	upgrading  bool
	closed     bool
	listener   net.Listener
	server     *http.Server
	peer       *peer
	nextID     transport.ConnectionID
}

var _ transport.Transport = &Transport{}

// New creates a new WebSocket transport.
func New(config *Config) *Transport {
	config = populateConfig(config)
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		config: config,
		logger: ilog.WithComponent(config.Logger, ilog.ComponentTransport),
		events: eventqueue.New(eventqueue.DefaultCapacity),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
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

// Listen starts an HTTP server on address (host:port).
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
	ln, err := net.Listen("tcp", address)
	if err != nil {
		t.logger.Warn("listening failed", "address", address, "error", err)
		t.events.TryPush(transport.Event{
			Type:         transport.ListeningFailed,
			ConnectionID: transport.InvalidConnectionID,
			Err:          err,
		})
		return nil
	}
	if t.config.ReadLimit > 0 || t.config.WriteLimit > 0 {
		ln = bwlimit.NewListener(ln, bwlimit.Byte(t.config.WriteLimit), bwlimit.Byte(t.config.ReadLimit))
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.config.Path, t.handleUpgrade)
	t.listener = ln
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	t.logger.Info("listening", "address", ln.Addr(), "path", t.config.Path)
	t.events.TryPush(transport.Event{Type: transport.ListeningReady, ConnectionID: transport.InvalidConnectionID})

	server := t.server
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Warn("server failed", "error", err)
		}
	}()
	return nil
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

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	t.mx.Lock()
	if t.closed || t.peer != nil || t.upgrading {
		t.mx.Unlock()
		t.logger.Info("rejecting connection", "remote", r.RemoteAddr)
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	t.upgrading = true
	// Close waits for the handler, since it may start the peer's goroutines.
	t.wg.Add(1)
	defer t.wg.Done()
	t.mx.Unlock()

	conn, err := t.upgrader.Upgrade(w, r, nil)

	t.mx.Lock()
	t.upgrading = false
	if err != nil {
		t.mx.Unlock()
		t.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if t.closed {
		t.mx.Unlock()
		conn.Close()
		return
	}
	p := t.addPeer(conn)
	t.mx.Unlock()
	t.logger.Info("accepted connection", "peer", p.id, "remote", r.RemoteAddr)
	t.startPeer(p)
}

// Call connects to address in the background.
// address is either host:port or a ws:// URL.
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

	url := address
	if !strings.Contains(address, "://") {
		url = "ws://" + address + t.config.Path
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.config.DialTimeout)
		defer cancel()
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil && resp != nil {
			err = fmt.Errorf("%w: %s", err, resp.Status)
		}

		t.mx.Lock()
		t.calling = false
		if err != nil {
			closed := t.closed
			t.mx.Unlock()
			if closed {
				return
			}
			t.logger.Warn("call failed", "url", url, "error", err)
			t.events.TryPush(transport.Event{
				Type:         transport.ConnectionFailed,
				ConnectionID: transport.InvalidConnectionID,
				Err:          err,
			})
			return
		}
		if t.closed {
			t.mx.Unlock()
			conn.Close()
			return
		}
		p := t.addPeer(conn)
		t.mx.Unlock()
		t.logger.Info("call accepted", "peer", p.id, "url", url)
		t.startPeer(p)
	}()
	return nil
}

// addPeer must be called with t.mx held.
func (t *Transport) addPeer(conn *websocket.Conn) *peer {
	conn.SetReadLimit(protocol.MaxMessageSize)
	p := &peer{
		id:         t.nextID,
		conn:       conn,
		queue:      sendqueue.New(t.config.MaxQueuedBytes),
		writerDone: make(chan struct{}),
	}
	t.nextID++
	t.peer = p
	return p
}

// startPeer reports the new call and starts the peer's goroutines.
// It must be called without t.mx held, by a goroutine tracked by t.wg.
func (t *Transport) startPeer(p *peer) {
	// Push blocks while the queue is full, and fails once Close was called.
	if !t.events.Push(transport.Event{Type: transport.CallAccepted, ConnectionID: p.id}) {
		close(p.writerDone)
		return
	}

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.write(p)
	}()
	go func() {
		defer t.wg.Done()
		t.read(p)
	}()
}

func (t *Transport) write(p *peer) {
	defer close(p.writerDone)

	err := p.queue.Run(sendqueue.WriterFunc(func(b []byte) error {
		return p.conn.WriteMessage(websocket.BinaryMessage, b)
	}))
	if errors.Is(err, sendqueue.ErrClosed) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		return
	}
	t.logger.Debug("writing message failed", "peer", p.id, "error", err)
}

// read delivers messages until the connection ends, and reports how it ended.
func (t *Transport) read(p *peer) {
	var err error
	for {
		var b []byte
		_, b, err = p.conn.ReadMessage()
		if err != nil {
			break
		}
		if !t.events.Push(transport.Event{Type: transport.DataMessage, ConnectionID: p.id, Data: b, Reliable: true}) {
			break
		}
	}
	p.queue.Close()

	t.mx.Lock()
	if t.peer == p {
		t.peer = nil
	}
	closed := t.closed
	t.mx.Unlock()

	// Give the writer a chance to flush before tearing down the connection.
	select {
	case <-p.writerDone:
	case <-time.After(closeTimeout):
	}
	p.conn.Close()
	if closed || err == nil {
		return
	}

	ev := transport.Event{Type: transport.ConnectionFailed, ConnectionID: p.id, Err: err}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
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

// Send queues a copy of payload. reliable is ignored.
func (t *Transport) Send(payload []byte, _ bool, id transport.ConnectionID) bool {
	if len(payload) > protocol.MaxMessageSize {
		return false
	}
	p := t.getPeer(id)
	if p == nil {
		return false
	}
	return p.queue.Send(payload)
}

// BufferedAmount returns the number of bytes waiting to be written.
// Both modes share the same queue.
func (t *Transport) BufferedAmount(id transport.ConnectionID, _ bool) int {
	p := t.getPeer(id)
	if p == nil {
		return 0
	}
	return p.queue.Buffered()
}

func (t *Transport) Update() []transport.Event {
	return t.events.Drain()
}

// Close closes the connection and stops the HTTP server.
// The peer receives a CallEnded event.
func (t *Transport) Close() error {
	t.mx.Lock()
	if t.closed {
		t.mx.Unlock()
		return nil
	}
	t.closed = true
	server := t.server
	p := t.peer
	t.peer = nil
	t.mx.Unlock()

	t.cancel()
	t.events.Close()
	if p != nil {
		// The writer sends a close frame after flushing the queue.
		p.queue.Close()
		select {
		case <-p.writerDone:
		case <-time.After(closeTimeout):
		}
		p.conn.Close()
	}
	var err error
	if server != nil {
		err = server.Close()
	}
	t.wg.Wait()
	return err
}
