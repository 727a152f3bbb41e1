package cmdutil

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeMetrics serves the metrics gathered by g on /metrics until ctx is canceled.
func ServeMetrics(ctx context.Context, ln net.Listener, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errChan := make(chan error, 1)
	go func() { errChan <- server.Serve(ln) }()
	logger.Info("serving metrics", "address", ln.Addr())

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
