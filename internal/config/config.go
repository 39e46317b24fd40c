package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port            string
	DataDir         string // progress record, pid record, job history db
	DownloadsDir    string
	YTDLPPath       string
	FFmpegPath      string
	FFprobePath     string
	DemucsPython    string
	StemFormat      string // mp3 or flac
	PollInterval    time.Duration
	DownloadTimeout time.Duration
	LogLevel        string
	LogFormat       string
	NotifyCommand   string // optional desktop notification command
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	home, _ := os.UserHomeDir()
	dataDir := getEnv("STEMFORGE_DATA_DIR", filepath.Join(home, ".stemforge"))

	return &Config{
		Port:            getEnv("PORT", "8090"),
		DataDir:         dataDir,
		DownloadsDir:    getEnv("DOWNLOADS_DIR", filepath.Join(home, "Downloads")),
		YTDLPPath:       getEnv("YTDLP_PATH", ""),
		FFmpegPath:      getEnv("FFMPEG_PATH", ""),
		FFprobePath:     getEnv("FFPROBE_PATH", ""),
		DemucsPython:    getEnv("DEMUCS_PYTHON", filepath.Join(dataDir, "venv-demucs", "bin", "python")),
		StemFormat:      getEnv("STEM_FORMAT", "mp3"),
		PollInterval:    getDuration("POLL_INTERVAL", 1500*time.Millisecond),
		DownloadTimeout: getDuration("DOWNLOAD_TIMEOUT", 5*time.Minute),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		NotifyCommand:   getEnv("NOTIFY_COMMAND", ""),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DataDir == "" {
		errors = append(errors, "STEMFORGE_DATA_DIR cannot be empty")
	}

	if c.DownloadsDir == "" {
		errors = append(errors, "DOWNLOADS_DIR cannot be empty")
	}

	validFormats := map[string]bool{
		"mp3":  true,
		"flac": true,
	}
	if !validFormats[c.StemFormat] {
		errors = append(errors, fmt.Sprintf("STEM_FORMAT must be one of: mp3, flac, got: %s", c.StemFormat))
	}

	if c.PollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("POLL_INTERVAL must be positive, got: %s", c.PollInterval))
	}

	if c.DownloadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("DOWNLOAD_TIMEOUT must be positive, got: %s", c.DownloadTimeout))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// ProgressPath is the location of the shared progress record.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.DataDir, "progress.json")
}

// PIDPath is the location of the persisted worker process record.
func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir, "worker.pid")
}

// DBPath is the location of the job history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "stemforge.db")
}

// StemExt is the file extension stems are produced with.
func (c *Config) StemExt() string {
	return "." + c.StemFormat
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDuration retrieves a duration environment variable with a fallback default
func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
