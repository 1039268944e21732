// Package config loads the process-wide configuration once at startup.
// Every option has a default; nothing here is read more than once.
package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Rendition is a static (resolution, bitrate) target for one output of a
// codec's ladder.
type Rendition struct {
	Name             string
	Width            int
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// Codec names a video codec family and its ordered rendition ladder,
// highest quality first.
type Codec struct {
	Name       string
	Renditions []Rendition
}

// Config is the complete process configuration, read once in Load.
type Config struct {
	RTMPPort    int
	HTTPPort    int
	MetricsPort int

	StreamsDir    string
	RecordingsDir string

	PrimaryCodec   Codec
	SecondaryCodec Codec

	HardwareAcceleration bool
	SegmentSeconds       int
	PlaylistWindow       int
	CleanupGraceSeconds  int
	ChatRetention        int

	MongoURI string
	MongoDB  string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from a .env file (if present, via godotenv's
// autoload import above), then the process environment, applying the
// defaults below for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rtmp_port", 1935)
	v.SetDefault("http_port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("streams_dir", "streams")
	v.SetDefault("recordings_dir", "recordings")
	v.SetDefault("hardware_acceleration", false)
	v.SetDefault("segment_seconds", 1)
	v.SetDefault("playlist_window", 6)
	v.SetDefault("cleanup_grace_seconds", 10)
	v.SetDefault("chat_retention", 50)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "liveclass")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	cfg := &Config{
		RTMPPort:             v.GetInt("rtmp_port"),
		HTTPPort:             v.GetInt("http_port"),
		MetricsPort:          v.GetInt("metrics_port"),
		StreamsDir:           v.GetString("streams_dir"),
		RecordingsDir:        v.GetString("recordings_dir"),
		HardwareAcceleration: v.GetBool("hardware_acceleration"),
		SegmentSeconds:       v.GetInt("segment_seconds"),
		PlaylistWindow:       v.GetInt("playlist_window"),
		CleanupGraceSeconds:  v.GetInt("cleanup_grace_seconds"),
		ChatRetention:        v.GetInt("chat_retention"),
		MongoURI:             v.GetString("mongo_uri"),
		MongoDB:              v.GetString("mongo_db"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		PrimaryCodec:         defaultPrimaryCodec(),
		SecondaryCodec:       defaultSecondaryCodec(),
	}

	return cfg, cfg.Validate()
}

// Validate rejects configuration that would leave the core unable to start.
func (c *Config) Validate() error {
	if c.RTMPPort <= 0 || c.RTMPPort > 65535 {
		return fmt.Errorf("invalid rtmp port: %d", c.RTMPPort)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}
	if c.StreamsDir == "" {
		return fmt.Errorf("streams dir is required")
	}
	if c.RecordingsDir == "" {
		return fmt.Errorf("recordings dir is required")
	}
	if c.SegmentSeconds < 1 || c.SegmentSeconds > 2 {
		return fmt.Errorf("segment seconds must be 1 or 2, got %d", c.SegmentSeconds)
	}
	if c.PlaylistWindow < 4 || c.PlaylistWindow > 6 {
		return fmt.Errorf("playlist window must be between 4 and 6, got %d", c.PlaylistWindow)
	}
	if c.ChatRetention < 50 {
		return fmt.Errorf("chat retention must be at least 50, got %d", c.ChatRetention)
	}
	if len(c.PrimaryCodec.Renditions) == 0 {
		return fmt.Errorf("primary codec must have at least one rendition")
	}
	return nil
}

// CleanupGrace returns CleanupGraceSeconds as a time.Duration.
func (c *Config) CleanupGrace() time.Duration {
	return time.Duration(c.CleanupGraceSeconds) * time.Second
}

// SegmentDuration returns SegmentSeconds as a time.Duration.
func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentSeconds) * time.Second
}

func defaultPrimaryCodec() Codec {
	return Codec{
		Name: "h264",
		Renditions: []Rendition{
			{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 4500, AudioBitrateKbps: 128},
			{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 2500, AudioBitrateKbps: 128},
			{Name: "480p", Width: 854, Height: 480, VideoBitrateKbps: 1200, AudioBitrateKbps: 96},
			{Name: "360p", Width: 640, Height: 360, VideoBitrateKbps: 700, AudioBitrateKbps: 96},
		},
	}
}

func defaultSecondaryCodec() Codec {
	return Codec{
		Name: "hevc",
		Renditions: []Rendition{
			{Name: "1080p", Width: 1920, Height: 1080, VideoBitrateKbps: 3000, AudioBitrateKbps: 128},
			{Name: "720p", Width: 1280, Height: 720, VideoBitrateKbps: 1600, AudioBitrateKbps: 128},
			{Name: "480p", Width: 854, Height: 480, VideoBitrateKbps: 800, AudioBitrateKbps: 96},
			{Name: "360p", Width: 640, Height: 360, VideoBitrateKbps: 450, AudioBitrateKbps: 96},
		},
	}
}
