package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"liveclass/internal/config"
	"liveclass/internal/room"
	"liveclass/internal/transcoder"

	"github.com/pkg/errors"
)

// Scheduler delays file deletion for a stream key by a grace period
// after it stops publishing, so a quick reconnect never loses segments
// mid-window. Generalized from raffleberry-cctv's storageCleaner, which
// deletes by retention age on a fixed nightly sweep; here the trigger is
// a per-key grace timer that a re-publish cancels outright.
type Scheduler struct {
	cfg *config.Config
	log *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewScheduler returns an empty Scheduler.
func NewScheduler(cfg *config.Config, log *slog.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, log: log, timers: make(map[string]*time.Timer)}
}

// Schedule arms a grace-period timer for streamKey. onFire runs once the
// timer elapses, unless Cancel is called first. Scheduling a key that
// already has a pending timer replaces it.
func (s *Scheduler) Schedule(streamKey string, grace time.Duration, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[streamKey]; ok {
		t.Stop()
	}
	s.timers[streamKey] = time.AfterFunc(grace, func() {
		s.mu.Lock()
		delete(s.timers, streamKey)
		s.mu.Unlock()
		s.logf(slog.LevelDebug, "cleanup grace period elapsed", "stream_key", streamKey)
		onFire()
	})
}

// Cancel stops a pending cleanup for streamKey, if one exists. Called
// when a stream key is re-published before its grace period elapses.
func (s *Scheduler) Cancel(streamKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[streamKey]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, streamKey)
	return true
}

func (s *Scheduler) logf(level slog.Level, msg string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(context.Background(), level, msg, args...)
}

// deleteStreamFiles removes every on-disk artifact for one stream key's
// segments and playlists. Best-effort per spec.md section 4.D: os.RemoveAll
// keeps going past an entry it cannot remove and returns the first such
// error, which the caller logs once for the whole sweep.
func deleteStreamFiles(cfg *config.Config, streamKey string) error {
	dir := filepath.Join(cfg.StreamsDir, streamKey)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove stream directory %s", dir)
	}
	return nil
}

// writeTopLevelPlaylist writes the per-stream-key entry playlist that
// lists each available codec's master playlist, the first thing a
// player requests for a stream key.
func writeTopLevelPlaylist(cfg *config.Config, streamKey string, policy room.CodecPolicy) error {
	dir := filepath.Join(cfg.StreamsDir, streamKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create stream directory %s", dir)
	}

	var secondary *config.Codec
	if policy.SecondaryCodecEnabled && len(cfg.SecondaryCodec.Renditions) > 0 {
		secondary = &cfg.SecondaryCodec
	}

	body := transcoder.BuildTopLevelPlaylist(&cfg.PrimaryCodec, secondary)
	path := filepath.Join(dir, "playlist.m3u8")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return errors.Wrapf(err, "write top-level playlist %s", path)
	}
	return nil
}
