package self_test

import (
	"context"
	"time"

	"github.com/quic-go/dcbench"
	"github.com/quic-go/dcbench/internal/testutils"
	"github.com/quic-go/dcbench/quictransport"
	"github.com/quic-go/dcbench/transport"
	"github.com/quic-go/dcbench/wstransport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type benchmark struct {
	sender    *dcbench.Sender
	responder *dcbench.Responder
	cancel    context.CancelFunc
	done      chan struct{}
}

func startBenchmark(senderTransport, echoTransport transport.Factory, config *dcbench.Config) *benchmark {
	responder, err := dcbench.NewResponder(echoTransport, config.Clone())
	Expect(err).ToNot(HaveOccurred())
	sender, err := dcbench.NewSender(senderTransport, config.Clone())
	Expect(err).ToNot(HaveOccurred())

	ctx, cancel := context.WithCancel(context.Background())
	b := &benchmark{sender: sender, responder: responder, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer GinkgoRecover()
		// the responder needs to listen before the sender calls
		go func() {
			defer GinkgoRecover()
			Expect(dcbench.Run(ctx, sender, tickInterval)).To(Succeed())
		}()
		Expect(dcbench.Run(ctx, responder, tickInterval)).To(Succeed())
		close(b.done)
	}()
	return b
}

func (b *benchmark) stop() {
	b.cancel()
	Eventually(b.done, scaled(time.Second)).Should(BeClosed())
	Eventually(b.sender.State, scaled(time.Second)).Should(Equal(dcbench.SenderStateReleased))
}

func (b *benchmark) waitForAcknowledgements(n uint64) {
	Eventually(func() uint64 { return b.sender.Stats().MessagesReceived }, scaled(10*time.Second)).Should(BeNumerically(">=", n))
}

func scaled(d time.Duration) time.Duration { return testutils.ScaleDuration(d) }

var _ = Describe("Benchmark", func() {
	quicFactories := func() (transport.Factory, transport.Factory) {
		return quictransport.Factory(&quictransport.Config{Logger: newConfig().Logger}),
			quictransport.Factory(&quictransport.Config{TLSConfig: tlsConfig, Logger: newConfig().Logger})
	}

	It("runs over QUIC streams", func() {
		config := newConfig()
		config.Address = freeUDPAddr()
		senderTransport, echoTransport := quicFactories()
		b := startBenchmark(senderTransport, echoTransport, config)
		defer b.stop()

		b.waitForAcknowledgements(100)
		stats := b.sender.Stats()
		Expect(stats.State).To(Equal(dcbench.SenderStateActive))
		Expect(stats.Run).To(BeEquivalentTo(1))
		Expect(stats.OutOfOrder).To(BeZero())
		Expect(stats.MessagesLost).To(BeZero())
		Expect(stats.Err).ToNot(HaveOccurred())
		Expect(stats.Latency).To(BeNumerically("<", time.Second))
		Expect(b.responder.Stats().Connected).To(BeTrue())
	})

	It("runs over QUIC datagrams", func() {
		config := newConfig()
		config.Address = freeUDPAddr()
		config.Unreliable = true
		senderTransport, echoTransport := quicFactories()
		b := startBenchmark(senderTransport, echoTransport, config)
		defer b.stop()

		b.waitForAcknowledgements(100)
		stats := b.sender.Stats()
		Expect(stats.State).To(Equal(dcbench.SenderStateActive))
		Expect(stats.Unreliable).To(BeTrue())
		Expect(b.responder.Stats().MessagesReceived).To(BeNumerically(">=", 100))
	})

	It("runs over WebSockets", func() {
		config := newConfig()
		config.Address = freeTCPAddr()
		factory := wstransport.Factory(&wstransport.Config{Logger: config.Logger})
		b := startBenchmark(factory, factory, config)
		defer b.stop()

		b.waitForAcknowledgements(100)
		stats := b.sender.Stats()
		Expect(stats.State).To(Equal(dcbench.SenderStateActive))
		Expect(stats.OutOfOrder).To(BeZero())
		Expect(stats.MessagesLost).To(BeZero())
	})

	It("runs over a rate-limited WebSocket listener", func() {
		config := newConfig()
		config.Address = freeTCPAddr()
		config.TargetRate = 16 * 1024
		b := startBenchmark(
			wstransport.Factory(&wstransport.Config{Logger: config.Logger}),
			wstransport.Factory(&wstransport.Config{ReadLimit: 32 * 1024, WriteLimit: 32 * 1024, Logger: config.Logger}),
			config,
		)
		defer b.stop()

		b.waitForAcknowledgements(20)
		Expect(b.sender.Stats().OutOfOrder).To(BeZero())
	})

	It("publishes rolling averages", func() {
		config := newConfig()
		config.Address = freeUDPAddr()
		senderTransport, echoTransport := quicFactories()
		b := startBenchmark(senderTransport, echoTransport, config)
		defer b.stop()

		Eventually(func() float64 { return b.sender.Stats().AvgConfirmed }, scaled(5*time.Second)).Should(BeNumerically(">", 0))
		Eventually(func() float64 { return b.responder.Stats().AvgReceived }, scaled(5*time.Second)).Should(BeNumerically(">", 0))
		stats := b.sender.Stats()
		Expect(stats.AvgSent).To(BeNumerically("~", config.TargetRate, config.TargetRate/2))
	})

	It("reconnects when the responder restarts", func() {
		config := newConfig()
		config.Address = freeUDPAddr()
		senderTransport, echoTransport := quicFactories()
		b := startBenchmark(senderTransport, echoTransport, config)
		defer b.stop()

		b.waitForAcknowledgements(10)
		b.responder.Restart()
		Eventually(func() uint64 { return b.sender.Stats().Run }, scaled(10*time.Second)).Should(BeEquivalentTo(2))
		Eventually(b.sender.State, scaled(5*time.Second)).Should(Equal(dcbench.SenderStateActive))
		b.waitForAcknowledgements(10)
	})
})
