package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/mergebot/core/logger"
)

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewHandler builds the chi router used by Server.
func NewHandler(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// NewServer prepares a server bound to addr.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewHandler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	logger.Metrics.Info("metrics listening",
		slog.String("event", "metrics.start"),
		slog.String("addr", s.srv.Addr),
	)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Metrics.Error("metrics server failed",
				slog.String("event", "metrics.serve"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
