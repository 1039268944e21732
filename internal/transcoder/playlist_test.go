package transcoder

import (
	"strings"
	"testing"

	"liveclass/internal/config"
)

func testCodec() config.Codec {
	return config.Codec{
		Name: "h264",
		Renditions: []config.Rendition{
			{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 4500, AudioBitrateKbps: 128},
			{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 2500, AudioBitrateKbps: 128},
		},
	}
}

func TestBuildMasterPlaylistListsEveryRendition(t *testing.T) {
	out := BuildMasterPlaylist(testCodec())

	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Fatalf("playlist must start with #EXTM3U, got %q", out)
	}
	if !strings.Contains(out, "BANDWIDTH=4628000,RESOLUTION=1920x1080") {
		t.Fatalf("expected 1080p stream-inf entry, got:\n%s", out)
	}
	if !strings.Contains(out, "1080p/playlist.m3u8") {
		t.Fatalf("expected 1080p variant path, got:\n%s", out)
	}
	if !strings.Contains(out, "720p/playlist.m3u8") {
		t.Fatalf("expected 720p variant path, got:\n%s", out)
	}
}

func TestBuildTopLevelPlaylistPicksHighestRenditionPerCodec(t *testing.T) {
	primary := testCodec()
	secondary := config.Codec{
		Name: "hevc",
		Renditions: []config.Rendition{
			{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 3000, AudioBitrateKbps: 128},
		},
	}

	out := BuildTopLevelPlaylist(&primary, &secondary)

	if !strings.Contains(out, "h264/master.m3u8") {
		t.Fatalf("expected primary codec entry, got:\n%s", out)
	}
	if !strings.Contains(out, "hevc/master.m3u8") {
		t.Fatalf("expected secondary codec entry, got:\n%s", out)
	}
	if !strings.Contains(out, `BANDWIDTH=4628000,RESOLUTION=1920x1080,CODECS="h264"`) {
		t.Fatalf("expected primary entry to use its highest rendition, got:\n%s", out)
	}
	if !strings.Contains(out, `BANDWIDTH=3128000,RESOLUTION=1920x1080,CODECS="hevc"`) {
		t.Fatalf("expected secondary entry to use its highest rendition, got:\n%s", out)
	}
}

func TestBuildTopLevelPlaylistWithoutSecondary(t *testing.T) {
	primary := testCodec()
	out := BuildTopLevelPlaylist(&primary, nil)

	if strings.Count(out, "#EXT-X-STREAM-INF") != 1 {
		t.Fatalf("expected exactly one stream-inf entry without a secondary codec, got:\n%s", out)
	}
}
