package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.ManagerName != "firejail" || cfg.ProcRoot != "/proc" || cfg.RefreshInterval != time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "sandmon.json", `{"proc_root":"/host/proc","refresh_interval":"5s","proxy_path":"","log_level":"debug"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProcRoot != "/host/proc" || cfg.RefreshInterval != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ProxyPath != "" {
		t.Fatalf("explicit empty proxy_path should disable the filter, got %q", cfg.ProxyPath)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.ManagerName != "firejail" {
		t.Fatalf("unset key should keep default, got %q", cfg.ManagerName)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "sandmon.yaml", "manager_name: bwrap\nlist_retry_delay: 500ms\nmonitor_pid: 4242\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ManagerName != "bwrap" || cfg.ListRetryDelay != 500*time.Millisecond || cfg.MonitorPID != 4242 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	path := writeFile(t, "sandmon.json", `{"refresh_interval":"0s"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero refresh_interval")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envRefreshInterval, "250ms")
	t.Setenv(envManagerName, "firejail-test")
	t.Setenv(envListRetryDelay, "-1s")
	t.Setenv(envMonitorPID, "17")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != 250*time.Millisecond {
		t.Fatalf("expected env refresh interval, got %v", cfg.RefreshInterval)
	}
	if cfg.ManagerName != "firejail-test" {
		t.Fatalf("expected env manager, got %q", cfg.ManagerName)
	}
	if cfg.MonitorPID != 17 {
		t.Fatalf("expected env monitor pid, got %d", cfg.MonitorPID)
	}
	if cfg.ListRetryDelay != defaultListRetryDelay {
		t.Fatalf("invalid env value should be ignored, got %v", cfg.ListRetryDelay)
	}
}
