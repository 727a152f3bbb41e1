package cmdutil

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/quic-go/dcbench/memtransport"
	"github.com/quic-go/dcbench/quictransport"
	"github.com/quic-go/dcbench/transport"
	"github.com/quic-go/dcbench/wstransport"

	"github.com/quic-go/quic-go"
)

// TransportFactories returns the factories used by the sender and the echo responder.
// For the mem transport, both share one simulated network.
func (c *Config) TransportFactories(logger *slog.Logger) (sender, echo transport.Factory, _ error) {
	switch c.Transport {
	case TransportMem:
		n := memtransport.NewNetwork(&memtransport.LinkConfig{
			Bandwidth:        c.Link.Bandwidth,
			MaxBufferedBytes: c.Link.MaxBufferedBytes,
			Loss:             c.Link.Loss,
			Seed:             c.Link.Seed,
		})
		return n.Factory(), n.Factory(), nil
	case TransportQUIC:
		quicConf := &quic.Config{MaxIdleTimeout: c.QUIC.MaxIdleTimeout}
		var serverTLS *tls.Config
		if c.TLS.CertFile != "" {
			cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
			if err != nil {
				return nil, nil, fmt.Errorf("loading certificate: %w", err)
			}
			serverTLS = &tls.Config{
				Certificates: []tls.Certificate{cert},
				NextProtos:   []string{quictransport.ALPN},
			}
		}
		sender = quictransport.Factory(&quictransport.Config{
			QUICConfig:     quicConf,
			MaxQueuedBytes: c.QUIC.MaxQueuedBytes,
			Logger:         logger,
		})
		echo = quictransport.Factory(&quictransport.Config{
			TLSConfig:      serverTLS,
			QUICConfig:     quicConf,
			MaxQueuedBytes: c.QUIC.MaxQueuedBytes,
			Logger:         logger,
		})
		return sender, echo, nil
	case TransportWS:
		wsConf := &wstransport.Config{
			Path:           c.WebSocket.Path,
			ReadLimit:      c.WebSocket.ReadLimit,
			WriteLimit:     c.WebSocket.WriteLimit,
			MaxQueuedBytes: c.WebSocket.MaxQueuedBytes,
			Logger:         logger,
		}
		return wstransport.Factory(wsConf), wstransport.Factory(wsConf), nil
	default:
		return nil, nil, fmt.Errorf("invalid transport: %q", c.Transport)
	}
}
