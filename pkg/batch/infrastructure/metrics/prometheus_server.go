package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	logger "github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// MetricsServer exposes a PrometheusRecorder registry over HTTP.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer creates a server serving recorder's registry at cfg.Path on cfg.ListenAddr.
func NewMetricsServer(cfg config.PrometheusConfig, recorder *PrometheusRecorder) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{}))
	return &MetricsServer{
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listen address and serves in the background.
func (s *MetricsServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("MetricsServer: serve failed: %v", err)
		}
	}()
	logger.Infof("MetricsServer: serving Prometheus metrics on %s.", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *MetricsServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop shuts the server down gracefully.
func (s *MetricsServer) Stop(ctx context.Context) error {
	logger.Debugf("MetricsServer: shutting down.")
	return s.server.Shutdown(ctx)
}
