// Package config provides configuration loading for the dashboard service:
// defaults, an optional YAML file, and environment overrides, in that order
// of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvInt returns the integer for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return n
}

// DashboardConfig holds configuration for the dashboard service.
type DashboardConfig struct {
	HTTPAddr          string
	DetectionAPIURL   string
	PollInterval      time.Duration
	PollTimeout       time.Duration
	StatsPushInterval time.Duration
	TrafficBaseline   int
	LogLevel          string
	ShutdownTimeout   time.Duration
}

// fileConfig is the YAML representation. Durations are strings parsed with
// time.ParseDuration; absent fields keep their current value.
type fileConfig struct {
	HTTPAddr          string `yaml:"http_addr"`
	DetectionAPIURL   string `yaml:"detection_api_url"`
	PollInterval      string `yaml:"poll_interval"`
	PollTimeout       string `yaml:"poll_timeout"`
	StatsPushInterval string `yaml:"stats_push_interval"`
	TrafficBaseline   *int   `yaml:"traffic_baseline"`
	LogLevel          string `yaml:"log_level"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
}

// Default returns the built-in defaults.
func Default() DashboardConfig {
	return DashboardConfig{
		HTTPAddr:          ":8080",
		DetectionAPIURL:   "http://localhost:8000",
		PollInterval:      10 * time.Second,
		PollTimeout:       5 * time.Second,
		StatsPushInterval: 5 * time.Second,
		TrafficBaseline:   100,
		LogLevel:          "info",
		ShutdownTimeout:   30 * time.Second,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then environment overrides.
func Load(path string) (DashboardConfig, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// FromEnv returns the effective configuration using CONFIG_FILE from the
// environment as the optional file path.
func FromEnv() (DashboardConfig, error) {
	return Load(GetEnv("CONFIG_FILE", ""))
}

func applyFile(cfg *DashboardConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if fc.HTTPAddr != "" {
		cfg.HTTPAddr = fc.HTTPAddr
	}
	if fc.DetectionAPIURL != "" {
		cfg.DetectionAPIURL = fc.DetectionAPIURL
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.TrafficBaseline != nil {
		cfg.TrafficBaseline = *fc.TrafficBaseline
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.PollInterval, &cfg.PollInterval},
		{fc.PollTimeout, &cfg.PollTimeout},
		{fc.StatsPushInterval, &cfg.StatsPushInterval},
		{fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q in config file: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func applyEnv(cfg *DashboardConfig) {
	cfg.HTTPAddr = GetEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DetectionAPIURL = GetEnv("DETECTION_API_URL", cfg.DetectionAPIURL)
	cfg.PollInterval = GetEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.PollTimeout = GetEnvDuration("POLL_TIMEOUT", cfg.PollTimeout)
	cfg.StatsPushInterval = GetEnvDuration("STATS_PUSH_INTERVAL", cfg.StatsPushInterval)
	cfg.TrafficBaseline = GetEnvInt("TRAFFIC_BASELINE", cfg.TrafficBaseline)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
}

// Watch reloads the config file on change and invokes onChange with the new
// effective configuration. It returns after the watcher is installed; the
// watch loop runs until ctx is cancelled. Failed reloads are logged and the
// previous configuration stays in effect.
func Watch(ctx context.Context, path string, log *logrus.Logger, onChange func(DashboardConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so the file can be replaced atomically.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.WithError(err).Warn("Ignoring invalid config reload")
					continue
				}
				log.WithField("path", path).Info("Configuration reloaded")
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Config watcher error")
			}
		}
	}()
	return nil
}
