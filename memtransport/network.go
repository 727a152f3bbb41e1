// Package memtransport implements an in-process transport.
// It simulates a link with limited bandwidth, bounded send buffers and random
// loss of unreliable messages.
package memtransport

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/quic-go/dcbench/internal/utils/ringbuffer"
	"github.com/quic-go/dcbench/transport"
)

// LinkConfig configures the simulated link.
// The zero value is an unlimited, lossless link.
type LinkConfig struct {
	// Bandwidth is the number of bytes each endpoint delivers per call to Update,
	// per delivery mode. 0 means unlimited.
	Bandwidth int
	// MaxBufferedBytes limits the bytes queued per endpoint and delivery mode.
	// Send fails once it is reached. 0 means unlimited.
	MaxBufferedBytes int
	// Loss is the probability that an unreliable message is dropped.
	Loss float64
	// Seed seeds the loss generator.
	Seed uint64
}

var (
	errClosed           = errors.New("memtransport: transport closed")
	errNotConfigured    = errors.New("memtransport: transport not configured")
	errAddressInUse     = errors.New("memtransport: address in use")
	errNoListener       = errors.New("memtransport: nobody listening on address")
	errListenerBusy     = errors.New("memtransport: listener already connected")
	errAlreadyConnected = errors.New("memtransport: already listening or connected")
)

// A Network connects transports by address.
type Network struct {
	config LinkConfig

	mx        sync.Mutex
	rand      *rand.Rand
	listeners map[string]*Transport
	nextID    transport.ConnectionID
}

// NewNetwork creates a new network. config may be nil.
func NewNetwork(config *LinkConfig) *Network {
	if config == nil {
		config = &LinkConfig{}
	}
	return &Network{
		config:    *config,
		rand:      rand.New(rand.NewPCG(config.Seed, config.Seed)),
		listeners: make(map[string]*Transport),
	}
}

// NewTransport creates a new endpoint on this network.
func (n *Network) NewTransport() *Transport {
	return &Transport{net: n, peer: transport.InvalidConnectionID}
}

// Factory returns a factory creating endpoints on this network.
func (n *Network) Factory() transport.Factory {
	return func() (transport.Transport, error) { return n.NewTransport(), nil }
}

type message struct {
	data     []byte
	reliable bool
}

// link is one established call.
// Both endpoints use the same connection ID.
type link struct {
	id               transport.ConnectionID
	caller, listener *Transport
}

func (l *link) other(t *Transport) *Transport {
	if t == l.caller {
		return l.listener
	}
	return l.caller
}

type outQueue struct {
	queue    ringbuffer.RingBuffer[message]
	buffered int
}

func (q *outQueue) push(m message) {
	q.queue.PushBack(m)
	q.buffered += len(m.data)
}

func (q *outQueue) clear() {
	q.queue.Clear()
	q.buffered = 0
}
