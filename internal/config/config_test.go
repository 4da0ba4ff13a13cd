package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns default when unset", func(t *testing.T) {
		os.Unsetenv("DASH_TEST_GETENV_UNSET")
		got := GetEnv("DASH_TEST_GETENV_UNSET", "default")
		if got != "default" {
			t.Errorf("GetEnv(unset) = %q, want %q", got, "default")
		}
	})

	t.Run("returns value when set", func(t *testing.T) {
		os.Setenv("DASH_TEST_GETENV_SET", "myvalue")
		defer os.Unsetenv("DASH_TEST_GETENV_SET")
		got := GetEnv("DASH_TEST_GETENV_SET", "default")
		if got != "myvalue" {
			t.Errorf("GetEnv(set) = %q, want %q", got, "myvalue")
		}
	})

	t.Run("trims space", func(t *testing.T) {
		os.Setenv("DASH_TEST_GETENV_TRIM", "  trimmed  ")
		defer os.Unsetenv("DASH_TEST_GETENV_TRIM")
		got := GetEnv("DASH_TEST_GETENV_TRIM", "default")
		if got != "trimmed" {
			t.Errorf("GetEnv(trim) = %q, want %q", got, "trimmed")
		}
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Run("parses valid duration", func(t *testing.T) {
		os.Setenv("DASH_TEST_DURATION_VALID", "30s")
		defer os.Unsetenv("DASH_TEST_DURATION_VALID")
		got := GetEnvDuration("DASH_TEST_DURATION_VALID", time.Second)
		if got != 30*time.Second {
			t.Errorf("GetEnvDuration(30s) = %v, want 30s", got)
		}
	})

	t.Run("returns default on invalid duration", func(t *testing.T) {
		os.Setenv("DASH_TEST_DURATION_INVALID", "not-a-duration")
		defer os.Unsetenv("DASH_TEST_DURATION_INVALID")
		got := GetEnvDuration("DASH_TEST_DURATION_INVALID", 7*time.Second)
		if got != 7*time.Second {
			t.Errorf("GetEnvDuration(invalid) = %v, want 7s", got)
		}
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("parses valid int", func(t *testing.T) {
		os.Setenv("DASH_TEST_INT_VALID", "42")
		defer os.Unsetenv("DASH_TEST_INT_VALID")
		if got := GetEnvInt("DASH_TEST_INT_VALID", 1); got != 42 {
			t.Errorf("GetEnvInt(42) = %d, want 42", got)
		}
	})

	t.Run("returns default on invalid int", func(t *testing.T) {
		os.Setenv("DASH_TEST_INT_INVALID", "forty-two")
		defer os.Unsetenv("DASH_TEST_INT_INVALID")
		if got := GetEnvInt("DASH_TEST_INT_INVALID", 9); got != 9 {
			t.Errorf("GetEnvInt(invalid) = %d, want 9", got)
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.PollTimeout != 5*time.Second {
		t.Errorf("PollTimeout = %v, want 5s", cfg.PollTimeout)
	}
	if cfg.StatsPushInterval != 5*time.Second {
		t.Errorf("StatsPushInterval = %v, want 5s", cfg.StatsPushInterval)
	}
	if cfg.TrafficBaseline != 100 {
		t.Errorf("TrafficBaseline = %d, want 100", cfg.TrafficBaseline)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	content := []byte("http_addr: \":9090\"\npoll_interval: 3s\ntraffic_baseline: 250\nlog_level: debug\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want 3s", cfg.PollInterval)
	}
	if cfg.TrafficBaseline != 250 {
		t.Errorf("TrafficBaseline = %d, want 250", cfg.TrafficBaseline)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Fields absent from the file keep their defaults.
	if cfg.PollTimeout != 5*time.Second {
		t.Errorf("PollTimeout = %v, want default 5s", cfg.PollTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: 3s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("POLL_INTERVAL", "1s")
	defer os.Unsetenv("POLL_INTERVAL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want env override 1s", cfg.PollInterval)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: soon\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	reloaded := make(chan DashboardConfig, 1)
	err := Watch(ctx, path, log, func(cfg DashboardConfig) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Errorf("reloaded LogLevel = %q, want debug", cfg.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}
