package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tagmill/tagmill/internal/port/inbound"
)

// Transport is the inbound adapter that receives build events over
// HTTP and hands them to the tagging core.
type Transport struct {
	handler       inbound.EventHandler
	server        *http.Server
	addr          string
	logger        *slog.Logger
	healthChecker *HealthChecker
	sources       MetricsSources
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8080"
// (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithMetricsSources sets the live value sources for gauge metrics.
func WithMetricsSources(src MetricsSources) Option {
	return func(t *Transport) {
		t.sources = src
	}
}

// NewTransport creates an HTTP transport around the given event handler.
func NewTransport(handler inbound.EventHandler, opts ...Option) *Transport {
	t := &Transport{
		handler: handler,
		addr:    "127.0.0.1:8080",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins accepting build events. It blocks until the context is
// cancelled or the listener fails, and shuts down gracefully on
// cancellation.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(reg, t.sources)

	mux := http.NewServeMux()
	mux.Handle("/v1/events", RequestIDMiddleware(t.logger)(NewEventsHandler(t.handler, metrics)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	}

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("http listener started", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
