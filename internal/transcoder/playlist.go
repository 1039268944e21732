package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"liveclass/internal/config"

	"github.com/pkg/errors"
)

// BuildMasterPlaylist renders the per-codec master .m3u8 listing every
// rendition's variant playlist with its BANDWIDTH and RESOLUTION
// attributes, the master-playlist counterpart to
// Emibrown-HLS-Playlist-Orchestrator's BuildLivePlaylist (which renders a
// single variant's segment list; ffmpeg's own hls muxer does that part
// here, so the Playlist Writer only ever needs to stitch renditions
// together once at publish start).
func BuildMasterPlaylist(codec config.Codec) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, r := range codec.Renditions {
		bandwidth := (r.VideoBitrateKbps + r.AudioBitrateKbps) * 1000
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			bandwidth, r.Width, r.Height,
		))
		b.WriteString(r.Name)
		b.WriteString("/playlist.m3u8\n")
	}

	return b.String()
}

// WriteMasterPlaylist renders and writes codec's master playlist to
// <streams_dir>/<stream_key>/<codec>/master.m3u8. It is written once, at
// publish start, and never rewritten while the stream runs: the
// renditions are fixed for the lifetime of one ActiveStream (spec.md
// section 3).
func WriteMasterPlaylist(cfg *config.Config, streamKey string, codec config.Codec) error {
	dir := filepath.Join(cfg.StreamsDir, streamKey, codec.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create codec directory %s", dir)
	}
	path := filepath.Join(dir, "master.m3u8")
	if err := os.WriteFile(path, []byte(BuildMasterPlaylist(codec)), 0o644); err != nil {
		return errors.Wrapf(err, "write master playlist %s", path)
	}
	return nil
}

// BuildTopLevelPlaylist renders the top-level playlist a player first
// requests for a stream key: one #EXT-X-STREAM-INF entry per available
// codec, so a client capable of the secondary codec's decoder can pick it
// and a client that isn't stays on the primary. Holds true to spec.md's
// adaptive-bitrate-within-a-codec design: codec selection happens once,
// here, and rendition switching happens inside each codec's own master
// playlist via the player's own ABR logic.
func BuildTopLevelPlaylist(primary, secondary *config.Codec) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	writeCodecEntry(&b, primary)
	if secondary != nil {
		writeCodecEntry(&b, secondary)
	}

	return b.String()
}

func writeCodecEntry(b *strings.Builder, codec *config.Codec) {
	if codec == nil || len(codec.Renditions) == 0 {
		return
	}
	top := codec.Renditions[0]
	for _, r := range codec.Renditions {
		if r.VideoBitrateKbps > top.VideoBitrateKbps {
			top = r
		}
	}
	bandwidth := (top.VideoBitrateKbps + top.AudioBitrateKbps) * 1000
	fmt.Fprintf(b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\"\n", bandwidth, top.Width, top.Height, codec.Name)
	fmt.Fprintf(b, "%s/master.m3u8\n", codec.Name)
}
