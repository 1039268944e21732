package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the standalone operational HTTP server: Prometheus scrape
// target plus a liveness probe. It is intentionally separate from the
// player-facing fiber server in internal/httpapi so that a scraper outage
// or slow client there can never starve metrics collection.
type Server struct {
	http *http.Server
}

// NewServer builds the operational server. updateGauges is called before
// each /metrics scrape to refresh gauges that are cheap to recompute on
// demand (active stream/room/connection counts).
func NewServer(addr string, m *Metrics, log *slog.Logger, updateGauges func()) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.Handler(updateGauges).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{http: &http.Server{Addr: addr, Handler: r}}
}

// Start runs the server until it is shut down. It always returns a non-nil
// error, matching net/http.Server.ListenAndServe.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("metrics request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
