package memtransport

import (
	"github.com/quic-go/dcbench/transport"
)

// A Transport is an endpoint on a Network.
// All methods are safe for concurrent use.
type Transport struct {
	net *Network

	// all fields are guarded by net.mx
	configured bool
	closed     bool
	address    string // set while listening
	link       *link
	peer       transport.ConnectionID
	// indexed by reliable
	out    [2]outQueue
	events []transport.Event
}

var _ transport.Transport = &Transport{}

func modeIndex(reliable bool) int {
	if reliable {
		return 1
	}
	return 0
}

func (t *Transport) Configure() error {
	t.net.mx.Lock()
	defer t.net.mx.Unlock()

	if t.closed {
		return errClosed
	}
	t.configured = true
	t.events = append(t.events, transport.Event{Type: transport.ConfigurationComplete, ConnectionID: transport.InvalidConnectionID})
	return nil
}

func (t *Transport) Listen(address string) error {
	n := t.net
	n.mx.Lock()
	defer n.mx.Unlock()

	if t.closed {
		return errClosed
	}
	if !t.configured {
		return errNotConfigured
	}
	if t.address != "" || t.link != nil {
		return errAlreadyConnected
	}
	if _, ok := n.listeners[address]; ok {
		t.events = append(t.events, transport.Event{Type: transport.ListeningFailed, ConnectionID: transport.InvalidConnectionID, Err: errAddressInUse})
		return nil
	}
	n.listeners[address] = t
	t.address = address
	t.events = append(t.events, transport.Event{Type: transport.ListeningReady, ConnectionID: transport.InvalidConnectionID})
	return nil
}

func (t *Transport) Call(address string) error {
	n := t.net
	n.mx.Lock()
	defer n.mx.Unlock()

	if t.closed {
		return errClosed
	}
	if !t.configured {
		return errNotConfigured
	}
	if t.address != "" || t.link != nil {
		return errAlreadyConnected
	}
	l, ok := n.listeners[address]
	if !ok {
		t.events = append(t.events, transport.Event{Type: transport.ConnectionFailed, ConnectionID: transport.InvalidConnectionID, Err: errNoListener})
		return nil
	}
	if l.link != nil {
		t.events = append(t.events, transport.Event{Type: transport.ConnectionFailed, ConnectionID: transport.InvalidConnectionID, Err: errListenerBusy})
		return nil
	}
	id := n.nextID
	n.nextID++
	lnk := &link{id: id, caller: t, listener: l}
	t.link, t.peer = lnk, id
	l.link, l.peer = lnk, id
	t.events = append(t.events, transport.Event{Type: transport.CallAccepted, ConnectionID: id})
	l.events = append(l.events, transport.Event{Type: transport.CallAccepted, ConnectionID: id})
	return nil
}

func (t *Transport) Send(payload []byte, reliable bool, peer transport.ConnectionID) bool {
	n := t.net
	n.mx.Lock()
	defer n.mx.Unlock()

	if t.closed || t.link == nil || peer != t.peer {
		return false
	}
	q := &t.out[modeIndex(reliable)]
	if n.config.MaxBufferedBytes > 0 && q.buffered+len(payload) > n.config.MaxBufferedBytes {
		return false
	}
	q.push(message{data: append([]byte(nil), payload...), reliable: reliable})
	return true
}

func (t *Transport) BufferedAmount(peer transport.ConnectionID, reliable bool) int {
	t.net.mx.Lock()
	defer t.net.mx.Unlock()

	if t.link == nil || peer != t.peer {
		return 0
	}
	return t.out[modeIndex(reliable)].buffered
}

// Update delivers queued messages to the peer, limited by the link bandwidth,
// and returns the events received since the last call.
func (t *Transport) Update() []transport.Event {
	n := t.net
	n.mx.Lock()
	defer n.mx.Unlock()

	if t.link != nil {
		other := t.link.other(t)
		for i := range t.out {
			t.deliver(&t.out[i], other)
		}
	}
	events := t.events
	t.events = nil
	return events
}

func (t *Transport) deliver(q *outQueue, to *Transport) {
	n := t.net
	budget := n.config.Bandwidth
	for first := true; !q.queue.Empty(); first = false {
		m := q.queue.PeekFront()
		// a message larger than the bandwidth still goes out, alone
		if n.config.Bandwidth > 0 && len(m.data) > budget && !first {
			return
		}
		q.queue.PopFront()
		q.buffered -= len(m.data)
		budget -= len(m.data)
		if !m.reliable && n.config.Loss > 0 && n.rand.Float64() < n.config.Loss {
			continue
		}
		to.events = append(to.events, transport.Event{
			Type:         transport.DataMessage,
			ConnectionID: t.peer,
			Data:         m.data,
			Reliable:     m.reliable,
		})
	}
}

// Close ends the call, if any. The peer receives a CallEnded event.
func (t *Transport) Close() error {
	n := t.net
	n.mx.Lock()
	defer n.mx.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.address != "" {
		if n.listeners[t.address] == t {
			delete(n.listeners, t.address)
		}
		t.address = ""
	}
	if t.link != nil {
		other := t.link.other(t)
		other.events = append(other.events, transport.Event{Type: transport.CallEnded, ConnectionID: t.peer})
		other.link = nil
		other.peer = transport.InvalidConnectionID
		other.out[0].clear()
		other.out[1].clear()
		t.link = nil
		t.peer = transport.InvalidConnectionID
	}
	t.out[0].clear()
	t.out[1].clear()
	t.events = nil
	return nil
}
