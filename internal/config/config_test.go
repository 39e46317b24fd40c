package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:            "8090",
		DataDir:         "/tmp/stemforge",
		DownloadsDir:    "/tmp/downloads",
		StemFormat:      "mp3",
		PollInterval:    time.Second,
		DownloadTimeout: time.Minute,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"bad port", func(c *Config) { c.Port = "abc" }, "PORT"},
		{"port range", func(c *Config) { c.Port = "70000" }, "PORT"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "STEMFORGE_DATA_DIR"},
		{"empty downloads", func(c *Config) { c.DownloadsDir = "" }, "DOWNLOADS_DIR"},
		{"bad format", func(c *Config) { c.StemFormat = "ogg" }, "STEM_FORMAT"},
		{"bad poll", func(c *Config) { c.PollInterval = 0 }, "POLL_INTERVAL"},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Errorf("error %q does not mention %s", err, c.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8090" {
		t.Errorf("default port = %s", cfg.Port)
	}
	if cfg.StemFormat != "mp3" {
		t.Errorf("default stem format = %s", cfg.StemFormat)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Errorf("default poll interval = %s", cfg.PollInterval)
	}
	if !strings.HasSuffix(cfg.ProgressPath(), "progress.json") {
		t.Errorf("progress path = %s", cfg.ProgressPath())
	}
	if !strings.HasSuffix(cfg.PIDPath(), "worker.pid") {
		t.Errorf("pid path = %s", cfg.PIDPath())
	}
}

func TestStemExt(t *testing.T) {
	cfg := validConfig()
	if cfg.StemExt() != ".mp3" {
		t.Errorf("StemExt() = %s", cfg.StemExt())
	}
	cfg.StemFormat = "flac"
	if cfg.StemExt() != ".flac" {
		t.Errorf("StemExt() = %s", cfg.StemExt())
	}
}
