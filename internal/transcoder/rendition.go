package transcoder

import (
	"fmt"
	"path/filepath"

	"liveclass/internal/config"
)

// ffmpegArgs builds the argv for one rendition's ffmpeg process. ffmpeg
// reads the incoming stream from stdin (the ingest adapter's demuxed
// bytes are piped in, never a second RTMP hop) and writes its own HLS
// variant playlist and segments directly, the way raffleberry-cctv's
// recordLoop drives ffmpeg's hls muxer for sliding-window segment output.
// keyframeInterval (segment seconds x 30 frames) pins -g so every segment boundary lands on a
// keyframe, which is what makes the variant playlist byte-exact-seekable.
func ffmpegArgs(cfg *config.Config, streamKey, codecName string, r config.Rendition, outputDir string) []string {
	return ffmpegArgsForEncoder(cfg, streamKey, codecName, r, outputDir, cfg.HardwareAcceleration)
}

// ffmpegArgsForEncoder builds the same argv as ffmpegArgs but lets the
// caller force the software path regardless of cfg.HardwareAcceleration.
// The Transcoder Supervisor uses this to retry a rendition on libx264/
// libx265 after a VAAPI device fails to initialize.
func ffmpegArgsForEncoder(cfg *config.Config, streamKey, codecName string, r config.Rendition, outputDir string, useHardware bool) []string {
	segmentSeconds := cfg.SegmentSeconds
	keyframeInterval := segmentSeconds * 30 // assumes a 30fps source; matches spec's fixed-GOP segment alignment rule

	args := []string{
		"-hide_banner",
		"-nostats",
		"-i", "pipe:0",
	}

	args = append(args, videoCodecArgs(codecName, r, keyframeInterval, useHardware)...)
	args = append(args,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", r.AudioBitrateKbps),
		"-ar", "44100",
		"-ac", "2",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_list_size", fmt.Sprintf("%d", cfg.PlaylistWindow),
		"-hls_flags", "delete_segments+append_list+independent_segments",
		"-hls_segment_filename", filepath.Join(outputDir, "seg_%05d.ts"),
		filepath.Join(outputDir, "playlist.m3u8"),
	)

	return args
}

// videoCodecArgs selects the encoder and scaling/bitrate arguments for one
// rendition. It branches on codecName for which encoder family to use
// (spec.md section 2/4.B: the secondary codec ladder must actually be
// encoded in that codec, not re-labeled H.264) and on useHardware for
// which member of that family.
func videoCodecArgs(codecName string, r config.Rendition, keyframeInterval int, useHardware bool) []string {
	bitrate := fmt.Sprintf("%dk", r.VideoBitrateKbps)
	bufsize := fmt.Sprintf("%dk", r.VideoBitrateKbps*2)
	scale := fmt.Sprintf("scale=%d:%d", r.Width, r.Height)

	encoder := softwareEncoderFor(codecName)
	if useHardware {
		encoder = hardwareEncoderFor(codecName)
	}

	args := []string{
		"-vf", scale,
		"-c:v", encoder,
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", bufsize,
		"-g", fmt.Sprintf("%d", keyframeInterval),
	}
	if !useHardware {
		args = append(args, "-preset", "veryfast", "-sc_threshold", "0")
	}
	return args
}

// hardwareEncoderFor and softwareEncoderFor map a codec ladder's name
// (config.go's "h264"/"hevc") onto the ffmpeg encoder that actually
// produces that codec's bitstream. An unrecognized codec name falls back
// to H.264, matching config.go's own default ladder.
func hardwareEncoderFor(codecName string) string {
	if codecName == "hevc" {
		return "hevc_vaapi"
	}
	return "h264_vaapi"
}

func softwareEncoderFor(codecName string) string {
	if codecName == "hevc" {
		return "libx265"
	}
	return "libx264"
}

// renditionOutputDir is where one rendition's segments and variant
// playlist live: <streams_dir>/<stream_key>/<codec>/<rendition>/.
func renditionOutputDir(cfg *config.Config, streamKey, codecName, renditionName string) string {
	return filepath.Join(cfg.StreamsDir, streamKey, codecName, renditionName)
}
