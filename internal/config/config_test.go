package config

import "testing"

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			RTMPPort:       1935,
			HTTPPort:       8080,
			StreamsDir:     "streams",
			RecordingsDir:  "recordings",
			SegmentSeconds: 1,
			PlaylistWindow: 6,
			ChatRetention:  50,
			PrimaryCodec:   defaultPrimaryCodec(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad rtmp port", func(c *Config) { c.RTMPPort = 0 }, true},
		{"bad http port", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"empty streams dir", func(c *Config) { c.StreamsDir = "" }, true},
		{"segment seconds too long", func(c *Config) { c.SegmentSeconds = 5 }, true},
		{"playlist window too small", func(c *Config) { c.PlaylistWindow = 2 }, true},
		{"chat retention below floor", func(c *Config) { c.ChatRetention = 10 }, true},
		{"no primary renditions", func(c *Config) { c.PrimaryCodec.Renditions = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCleanupGrace(t *testing.T) {
	c := &Config{CleanupGraceSeconds: 10}
	if got := c.CleanupGrace(); got.Seconds() != 10 {
		t.Fatalf("CleanupGrace() = %v, want 10s", got)
	}
}
