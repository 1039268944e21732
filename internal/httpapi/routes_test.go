package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"liveclass/internal/config"
	"liveclass/internal/orchestrator"
	"liveclass/internal/realtime"
	"liveclass/internal/room"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		StreamsDir:    filepath.Join(dir, "streams"),
		RecordingsDir: filepath.Join(dir, "recordings"),
		ChatRetention: 50,
		PrimaryCodec: config.Codec{
			Name:       "h264",
			Renditions: []config.Rendition{{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 2500, AudioBitrateKbps: 128}},
		},
	}
	registry := room.NewRegistry(cfg.ChatRetention, nil, nil, nil)
	orch := orchestrator.New(cfg, registry, nil)
	channel := realtime.NewChannel(registry, nil)
	return New(cfg, nil, registry, orch, channel)
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServeStreamFileSetsCacheHeadersForPlaylistsAndSegments(t *testing.T) {
	s := testServer(t)

	roomDir := filepath.Join(s.cfg.StreamsDir, "room1")
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(roomDir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	if err := os.WriteFile(filepath.Join(roomDir, "seg_00001.ts"), []byte{0x47, 0x00}, 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	req := httptest.NewRequest("GET", "/streams/room1/playlist.m3u8", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("playlist request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for playlist, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("expected no-cache for playlist, got %q", got)
	}

	req = httptest.NewRequest("GET", "/streams/room1/seg_00001.ts", nil)
	resp, err = s.App.Test(req)
	if err != nil {
		t.Fatalf("segment request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for segment, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Fatalf("expected immutable long-TTL cache-control for segment, got %q", got)
	}
}

func TestServeStreamFileRejectsPathTraversal(t *testing.T) {
	s := testServer(t)

	if err := os.MkdirAll(s.cfg.StreamsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	secret := filepath.Join(filepath.Dir(s.cfg.StreamsDir), "secret.txt")
	if err := os.WriteFile(secret, []byte("do not serve"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	req := httptest.NewRequest("GET", "/streams/room1/../../secret.txt", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode == 200 {
		t.Fatalf("expected traversal outside the stream directory to be rejected, got 200")
	}
}

func TestServeStreamFileMissingReturnsNotFound(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/streams/room1/nope.m3u8", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStatusStreamsAndRoomsReturnJSON(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest("GET", "/status/streams", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var streamsBody map[string][]orchestrator.StreamSummary
	if err := json.NewDecoder(resp.Body).Decode(&streamsBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(streamsBody["streams"]) != 0 {
		t.Fatalf("expected no active streams, got %d", len(streamsBody["streams"]))
	}

	req = httptest.NewRequest("GET", "/status/rooms", nil)
	resp, err = s.App.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var roomsBody map[string][]room.RoomStats
	if err := json.NewDecoder(resp.Body).Decode(&roomsBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(roomsBody["rooms"]) != 0 {
		t.Fatalf("expected no rooms before any join, got %d", len(roomsBody["rooms"]))
	}
}
