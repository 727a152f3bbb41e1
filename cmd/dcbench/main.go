package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/quic-go/dcbench"
	"github.com/quic-go/dcbench/internal/cmdutil"
	ilog "github.com/quic-go/dcbench/internal/slog"
	"github.com/quic-go/dcbench/logging"
	"github.com/quic-go/dcbench/metrics"
	"github.com/quic-go/dcbench/statstrace"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dcbench: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("dcbench", flag.ContinueOnError)
	c, err := cmdutil.ParseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	logger := ilog.DefaultLogger()
	if c.LogLevel != "" {
		logger, err = ilog.NewLoggerWithConfig(os.Stderr, c.LogLevel)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	senderTransport, echoTransport, err := c.TransportFactories(logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	var reg *prometheus.Registry
	if c.MetricsAddr != "" {
		ln, err := net.Listen("tcp", c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		reg = prometheus.NewRegistry()
		g.Go(func() error { return cmdutil.ServeMetrics(ctx, ln, reg, logger) })
	}

	var (
		sender    *dcbench.Sender
		responder *dcbench.Responder
	)
	if c.Role == cmdutil.RoleEcho || c.Role == cmdutil.RoleLocal {
		tracePath := c.TracePath
		if c.Role == cmdutil.RoleLocal && tracePath != "" {
			tracePath += ".echo"
		}
		tracer, err := newTracer(logging.RoleResponder, tracePath, reg)
		if err != nil {
			return err
		}
		config := c.BenchConfig()
		config.Logger = logger
		config.Tracer = tracer
		responder, err = dcbench.NewResponder(echoTransport, config)
		if err != nil {
			return err
		}
		g.Go(func() error { return dcbench.Run(ctx, responder, c.TickInterval) })
	}
	if c.Role == cmdutil.RoleSender || c.Role == cmdutil.RoleLocal {
		tracer, err := newTracer(logging.RoleSender, c.TracePath, reg)
		if err != nil {
			return err
		}
		config := c.BenchConfig()
		config.Logger = logger
		config.Tracer = tracer
		sender, err = dcbench.NewSender(senderTransport, config)
		if err != nil {
			return err
		}
		g.Go(func() error { return dcbench.Run(ctx, sender, c.TickInterval) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if responder != nil {
		fmt.Println(cmdutil.ResponderSummary(responder.Stats()))
	}
	if sender != nil {
		fmt.Println(cmdutil.SenderSummary(sender.Stats()))
	}
	return nil
}

// newTracer combines the console output with the optional metrics and trace outputs.
func newTracer(role logging.Role, tracePath string, reg *prometheus.Registry) (*logging.Tracer, error) {
	tracers := []*logging.Tracer{consoleTracer(role)}
	if reg != nil {
		tracers = append(tracers, metrics.NewTracerWithRegisterer(reg))
	}
	if tracePath != "" {
		w, err := cmdutil.CreateTrace(tracePath)
		if err != nil {
			return nil, fmt.Errorf("trace: %w", err)
		}
		tracers = append(tracers, statstrace.NewTracer(w, role))
	}
	return logging.NewMultiplexedTracer(tracers...), nil
}

func consoleTracer(role logging.Role) *logging.Tracer {
	if role == logging.RoleSender {
		return &logging.Tracer{
			UpdatedSenderStats: func(s logging.SenderStats) { fmt.Println(cmdutil.SenderSummary(s)) },
		}
	}
	return &logging.Tracer{
		UpdatedResponderStats: func(s logging.ResponderStats) { fmt.Println(cmdutil.ResponderSummary(s)) },
	}
}
