package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "empty server address",
			mutate: func(c *Config) { c.Server.Address = "" },
		},
		{
			name:   "zero frame rate",
			mutate: func(c *Config) { c.Studio.FrameRate = 0 },
		},
		{
			name:   "frame rate above cap",
			mutate: func(c *Config) { c.Studio.FrameRate = 240 },
		},
		{
			name:   "negative countdown",
			mutate: func(c *Config) { c.Studio.CountdownSeconds = -1 },
		},
		{
			name:   "negative intro seconds",
			mutate: func(c *Config) { c.Studio.IntroSeconds = -1 },
		},
		{
			name:   "speaking threshold out of range",
			mutate: func(c *Config) { c.Audio.SpeakingThreshold = 1.5 },
		},
		{
			name:   "smoothing out of range",
			mutate: func(c *Config) { c.Audio.Smoothing = 1.0 },
		},
		{
			name:   "half-open webrtc port range",
			mutate: func(c *Config) { c.WebRTC.PortRange.Min = 10000 },
		},
		{
			name:   "zero provisioning attempts",
			mutate: func(c *Config) { c.Provisioning.PollAttempts = 0 },
		},
		{
			name:   "redis enabled without address",
			mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Address = "" },
		},
		{
			name:   "empty jwt secret",
			mutate: func(c *Config) { c.Auth.JWTSecret = "" },
		},
		{
			name:   "rate limiting enabled with zero rps",
			mutate: func(c *Config) { c.RateLimiting.Enabled = true; c.RateLimiting.RequestsPerSecond = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected defaults when file missing, got: %v", err)
	}
	if cfg.Studio.FrameRate != 30 {
		t.Fatalf("expected default frame rate 30, got %d", cfg.Studio.FrameRate)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("studio:\n  frame_rate: 24\n  countdown_seconds: 10\naudio:\n  speaking_threshold: 0.1\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Studio.FrameRate != 24 {
		t.Errorf("frame_rate = %d, want 24", cfg.Studio.FrameRate)
	}
	if cfg.Studio.CountdownSeconds != 10 {
		t.Errorf("countdown_seconds = %d, want 10", cfg.Studio.CountdownSeconds)
	}
	if cfg.Audio.SpeakingThreshold != 0.1 {
		t.Errorf("speaking_threshold = %v, want 0.1", cfg.Audio.SpeakingThreshold)
	}
	// Untouched sections keep defaults.
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address = %q, want default", cfg.Server.Address)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STAGECAST_LOG_LEVEL", "debug")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Logging.Level)
	}
}
