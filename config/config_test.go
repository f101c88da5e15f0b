package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Script.WordsPerMinute != 150 {
		t.Fatalf("wpm = %d, want 150", cfg.Script.WordsPerMinute)
	}
	if cfg.Render.Width != 1920 || cfg.Render.Height != 1080 {
		t.Fatalf("resolution = %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Audio.Timeout != 120*time.Second {
		t.Fatalf("audio timeout = %v", cfg.Audio.Timeout)
	}
}

func TestLoadOverlaysFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
render:
  fps: 24
  timeout: 3m
assets:
  desired_clips: 8
paths:
  output: from-file
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUTPUT_DIR", "from-env")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "a:9092,b:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.FPS != 24 {
		t.Errorf("fps = %d, want 24", cfg.Render.FPS)
	}
	if cfg.Render.Timeout != 3*time.Minute {
		t.Errorf("render timeout = %v, want 3m", cfg.Render.Timeout)
	}
	if cfg.Render.Width != 1920 {
		t.Errorf("width lost its default: %d", cfg.Render.Width)
	}
	if cfg.Assets.DesiredClips != 8 {
		t.Errorf("desired clips = %d", cfg.Assets.DesiredClips)
	}
	if cfg.Paths.Output != "from-env" {
		t.Errorf("output = %q, env should win", cfg.Paths.Output)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero wpm", func(c *Config) { c.Script.WordsPerMinute = 0 }, false},
		{"shares eat everything", func(c *Config) { c.Script.IntroShare = 0.6; c.Script.ConclusionShare = 0.4 }, false},
		{"zero fps", func(c *Config) { c.Render.FPS = 0 }, false},
		{"zero chunk size", func(c *Config) { c.Audio.MaxChars = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
