package httpapi

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// registerRoutes mirrors the teacher's RegisterFiberRoutes layout (health
// check, then domain routes, then the websocket upgrade) with the video
// and user routes replaced by the HLS read surface this origin actually
// serves.
func (s *Server) registerRoutes() {
	s.App.Get("/health", s.healthHandler)

	s.App.Get("/streams/:key/*", s.serveStreamFile)

	s.App.Get("/status/streams", s.statusStreams)
	s.App.Get("/status/rooms", s.statusRooms)

	s.App.Use("/ws/:key", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/:key", websocket.New(func(conn *websocket.Conn) {
		s.channel.Serve(conn.Params("key"))(conn)
	}))
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// serveStreamFile serves one file under <streams_dir>/<key>/..., the tree
// the Playlist Writer and every Transcoder Supervisor's ffmpeg process
// write into. Playlists and segments get different cache treatment per
// spec section 6: a playlist can change every segment interval, a segment
// never changes once ffmpeg has written it.
func (s *Server) serveStreamFile(c *fiber.Ctx) error {
	key := c.Params("key")
	rel := c.Params("*")
	if key == "" || rel == "" {
		return fiber.ErrNotFound
	}

	base := filepath.Join(s.cfg.StreamsDir, key)
	full := filepath.Join(base, rel)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		// rel escaped the stream's own directory via "..".
		return fiber.ErrForbidden
	}

	if _, err := os.Stat(full); err != nil {
		return fiber.ErrNotFound
	}

	applyCacheHeaders(c, full)
	return c.SendFile(full)
}

func applyCacheHeaders(c *fiber.Ctx, path string) {
	switch filepath.Ext(path) {
	case ".m3u8":
		c.Set("Content-Type", "application/vnd.apple.mpegurl")
		c.Set("Cache-Control", "no-cache")
	case ".ts":
		c.Set("Content-Type", "video/mp2t")
		c.Set("Cache-Control", "public, max-age=31536000, immutable")
	}
}

// statusStreams reports every currently publishing stream, grounded on
// Emibrown-HLS-Playlist-Orchestrator's status-handler shape (a single JSON
// array under one top-level key) adapted onto fiber.
func (s *Server) statusStreams(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"streams": s.orch.Snapshot()})
}

// statusRooms reports every room currently held by the registry,
// including empty ones that have not yet been reaped.
func (s *Server) statusRooms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": s.registry.Snapshot()})
}
