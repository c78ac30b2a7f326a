package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultProcRoot        = "/proc"
	defaultManagerName     = "firejail"
	defaultProxyPath       = "/usr/bin/xdg-dbus-proxy"
	defaultRefreshInterval = time.Second
	defaultListRetryDelay  = 2 * time.Second

	envProcRoot        = "SANDMON_PROC_ROOT"
	envManagerName     = "SANDMON_MANAGER"
	envProxyPath       = "SANDMON_PROXY_PATH"
	envRefreshInterval = "SANDMON_REFRESH_INTERVAL"
	envListRetryDelay  = "SANDMON_LIST_RETRY_DELAY"
	envLogLevel        = "SANDMON_LOG_LEVEL"
	envMonitorPID      = "SANDMON_MONITOR_PID"
)

// Config aggregates the daemon's tunables.
type Config struct {
	// ProcRoot is the per-process information filesystem.
	ProcRoot string
	// ManagerName is the executable short name of the sandbox manager.
	ManagerName string
	// ProxyPath prefixes the command line of the bus proxy helper that
	// sandboxes start next to the application.
	ProxyPath       string
	RefreshInterval time.Duration
	ListRetryDelay  time.Duration
	LogLevel        slog.Level
	// MonitorPID limits tracking to the sandbox rooted at this pid. Zero
	// tracks every sandbox.
	MonitorPID int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ProcRoot:        defaultProcRoot,
		ManagerName:     defaultManagerName,
		ProxyPath:       defaultProxyPath,
		RefreshInterval: defaultRefreshInterval,
		ListRetryDelay:  defaultListRetryDelay,
		LogLevel:        slog.LevelInfo,
	}
}

// Load builds a Config from an optional JSON or YAML file plus environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envProcRoot); v != "" {
		cfg.ProcRoot = v
	}
	if v := os.Getenv(envManagerName); v != "" {
		cfg.ManagerName = v
	}
	if v, ok := os.LookupEnv(envProxyPath); ok {
		cfg.ProxyPath = v
	}
	overrideDuration(envRefreshInterval, &cfg.RefreshInterval)
	overrideDuration(envListRetryDelay, &cfg.ListRetryDelay)
	if v := os.Getenv(envMonitorPID); v != "" {
		if pid, err := parsePID(v); err == nil {
			cfg.MonitorPID = pid
		} else {
			slog.Warn("ignoring invalid environment override", "var", envMonitorPID, "value", v, "err", err)
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		if lvl, err := parseLevel(v); err == nil {
			cfg.LogLevel = lvl
		} else {
			slog.Warn("ignoring invalid environment override", "var", envLogLevel, "value", v, "err", err)
		}
	}
}

func overrideDuration(env string, dst *time.Duration) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	dur, err := time.ParseDuration(v)
	if err == nil && dur > 0 {
		*dst = dur
		return
	}
	if err == nil {
		err = errors.New("must be > 0")
	}
	slog.Warn("ignoring invalid environment override", "var", env, "value", v, "err", err)
}

type fileConfig struct {
	ProcRoot        string  `json:"proc_root" yaml:"proc_root"`
	ManagerName     string  `json:"manager_name" yaml:"manager_name"`
	ProxyPath       *string `json:"proxy_path" yaml:"proxy_path"`
	RefreshInterval string  `json:"refresh_interval" yaml:"refresh_interval"`
	ListRetryDelay  string  `json:"list_retry_delay" yaml:"list_retry_delay"`
	LogLevel        string  `json:"log_level" yaml:"log_level"`
	MonitorPID      *int    `json:"monitor_pid" yaml:"monitor_pid"`
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return err
	}

	if raw.ProcRoot != "" {
		cfg.ProcRoot = raw.ProcRoot
	}
	if raw.ManagerName != "" {
		cfg.ManagerName = raw.ManagerName
	}
	if raw.ProxyPath != nil {
		cfg.ProxyPath = *raw.ProxyPath
	}
	if raw.RefreshInterval != "" {
		dur, err := parsePositive("refresh_interval", raw.RefreshInterval)
		if err != nil {
			return err
		}
		cfg.RefreshInterval = dur
	}
	if raw.ListRetryDelay != "" {
		dur, err := parsePositive("list_retry_delay", raw.ListRetryDelay)
		if err != nil {
			return err
		}
		cfg.ListRetryDelay = dur
	}
	if raw.LogLevel != "" {
		lvl, err := parseLevel(raw.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = lvl
	}
	if raw.MonitorPID != nil {
		if *raw.MonitorPID < 0 {
			return fmt.Errorf("monitor_pid must be >= 0")
		}
		cfg.MonitorPID = *raw.MonitorPID
	}
	return nil
}

func parsePositive(key, v string) (time.Duration, error) {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return dur, nil
}

func parsePID(v string) (int, error) {
	pid, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse monitor_pid: %w", err)
	}
	if pid < 0 {
		return 0, errors.New("monitor_pid must be >= 0")
	}
	return pid, nil
}

func parseLevel(v string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("parse log_level: %w", err)
	}
	return lvl, nil
}

// NewLogger returns the daemon's text logger on stderr at cfg.LogLevel.
func (cfg Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}
