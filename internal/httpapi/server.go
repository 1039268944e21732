// Package httpapi is the player-facing HTTP surface: the static HLS read
// path under /streams, the websocket upgrade for the realtime room, and a
// pair of operational status endpoints. It never touches ingest or
// transcoding directly — those belong to internal/orchestrator — it only
// reads files that package writes and reports on state it exposes.
package httpapi

import (
	"context"
	"log/slog"

	"liveclass/internal/config"
	"liveclass/internal/orchestrator"
	"liveclass/internal/realtime"
	"liveclass/internal/room"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// Server is the fiber app wired to the config, room registry, orchestrator,
// and realtime channel this process runs. It mirrors the teacher's
// FiberServer shape (an embedded *fiber.App plus the dependencies its
// handlers need) narrowed to the components this origin actually has.
type Server struct {
	*fiber.App

	cfg      *config.Config
	log      *slog.Logger
	registry *room.Registry
	orch     *orchestrator.Orchestrator
	channel  *realtime.Channel
}

// New builds a Server with CORS and routes already registered.
func New(cfg *config.Config, log *slog.Logger, registry *room.Registry, orch *orchestrator.Orchestrator, channel *realtime.Channel) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "liveclass",
		AppName:               "liveclass",
		DisableStartupMessage: true,
	})

	s := &Server{
		App:      app,
		cfg:      cfg,
		log:      log,
		registry: registry,
		orch:     orch,
		channel:  channel,
	}
	s.applyMiddleware()
	s.registerRoutes()
	return s
}

// applyMiddleware mirrors the teacher's cors.New(...) call in
// internal/server/server.go, widened to allow every origin: HLS playback
// and the websocket room are meant to be embeddable from any page, and
// spec.md's non-goals exclude auth entirely, so there is no credential
// boundary for CORS to protect.
func (s *Server) applyMiddleware() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,HEAD,OPTIONS",
		AllowHeaders:     "Accept,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// Shutdown mirrors the teacher's graceful-shutdown intent: stop accepting
// new work and let in-flight requests drain.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func (s *Server) logf(level slog.Level, msg string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(context.Background(), level, msg, args...)
}
