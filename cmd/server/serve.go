package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"liveclass/internal/config"
	"liveclass/internal/history"
	"liveclass/internal/httpapi"
	"liveclass/internal/ingest"
	"liveclass/internal/orchestrator"
	"liveclass/internal/platform/logger"
	"liveclass/internal/platform/metrics"
	"liveclass/internal/realtime"
	"liveclass/internal/room"
)

// runServe wires every component together and blocks until SIGINT/SIGTERM,
// mirroring the teacher's gracefulShutdown in cmd/api/main.go but extended
// to the three servers this origin runs side by side: the player-facing
// fiber app, the RTMP ingest listener, and the standalone metrics server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting liveclass",
		slog.Int("rtmp_port", cfg.RTMPPort),
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("metrics_port", cfg.MetricsPort),
	)

	m := metrics.New()

	// registry and orchestrator each need the other to exist first: the
	// registry consults the orchestrator's HasActive before reaping an
	// empty room, and the orchestrator hands the registry its Hub lookups.
	// Build the registry with no checker, then wire it in once the
	// orchestrator exists.
	registry := room.NewRegistry(cfg.ChatRetention, log, m, nil)
	orch := orchestrator.New(cfg, registry, log)
	orch.SetMetrics(m)
	registry.SetActiveStreamChecker(orch.HasActive)

	ctx := context.Background()
	var store *history.Store
	if s, err := history.Connect(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
		// History is a supplement, not a requirement: spec.md's non-goals
		// already exclude durable persistence for chat and polls, and a
		// stream-session archive is no more essential than those. Log
		// and keep serving video rather than refuse to start.
		log.Warn("history store unavailable, continuing without session archival", slog.Any("err", err))
	} else {
		store = s
		orch.OnArchive(func(active *orchestrator.ActiveStream, endedAt time.Time, reason string) {
			sess := history.Session{
				StreamKey:             active.StreamKey,
				StartedAt:             active.StartedAt,
				EndedAt:               endedAt,
				RecordingPath:         active.RecordingPath,
				SecondaryCodecEnabled: active.Policy.SecondaryCodecEnabled,
				EndReason:             reason,
			}
			if err := store.RecordSession(context.Background(), sess); err != nil {
				log.Warn("failed to archive stream session", slog.String("stream_key", active.StreamKey), slog.Any("err", err))
			}
		})
	}

	channel := realtime.NewChannel(registry, log)
	httpServer := httpapi.New(cfg, log, registry, orch, channel)

	ingestServer := ingest.NewServer(cfg.RTMPPort, ingest.PublishCallbacks{
		OnPublishStart: orch.OnPublishStart,
		OnPublishEnd:   orch.OnPublishEnd,
	}, log)

	updateGauges := func() {
		m.SetActiveRooms(registry.Count())
		m.SetActiveStreams(len(orch.Snapshot()))
		joined := 0
		for _, rs := range registry.Snapshot() {
			joined += rs.ParticipantCount
		}
		m.SetActiveConnections(joined)
	}
	metricsServer := metrics.NewServer(fmt.Sprintf(":%d", cfg.MetricsPort), m, log, updateGauges)

	errs := make(chan error, 3)
	go func() {
		if err := httpServer.Listen(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := ingestServer.ListenAndServe(); err != nil {
			errs <- fmt.Errorf("rtmp server: %w", err)
		}
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			errs <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info("shutting down gracefully")
	case err := <-errs:
		log.Error("server failed, shutting down", slog.Any("err", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ingestServer.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", slog.Any("err", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", slog.Any("err", err))
	}
	if store != nil {
		if err := store.Close(shutdownCtx); err != nil {
			log.Warn("history store close error", slog.Any("err", err))
		}
	}

	log.Info("shutdown complete")
	return nil
}
