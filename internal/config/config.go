// Package config loads the relay's runtime configuration (spec §6.5) from
// environment variables, with an optional YAML override file for local
// development that is hot-reloaded on change.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var defaultAllowedOrigins = []string{
	"https://claude.omnara.com",
	"https://omnara.ai",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"null",
}

// RelayConfig is the relay daemon's runtime configuration (spec §6.5).
type RelayConfig struct {
	WSHost string
	WSPort int

	HistoryBytes       int
	HeartbeatInterval  time.Duration
	HeartbeatMissLimit int // reserved for future use, per spec §6.5
	EndedRetention     time.Duration
	AllowedOrigins     []string

	JWTKey string
}

// Default returns the configuration spec §6.5 describes before any
// environment or file overrides are applied.
func Default() RelayConfig {
	return RelayConfig{
		WSHost:             "0.0.0.0",
		WSPort:             8787,
		HistoryBytes:       1024 * 1024,
		HeartbeatInterval:  10 * time.Second,
		HeartbeatMissLimit: 3,
		EndedRetention:     900 * time.Second,
		AllowedOrigins:     append([]string(nil), defaultAllowedOrigins...),
	}
}

// fileOverride is the shape of the optional YAML config file, mirroring
// the teacher's wing.yaml: only the fields worth overriding outside an
// environment (the mutable, hot-reloadable subset) live here.
type fileOverride struct {
	HistoryBytes      *int     `yaml:"history_bytes"`
	HeartbeatInterval *int     `yaml:"heartbeat_interval_seconds"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

// FromEnv builds a RelayConfig from environment variables, following
// original_source/src/relay_server/config.py's RelaySettings.from_env().
func FromEnv() RelayConfig {
	cfg := Default()

	cfg.WSHost = envOr("OMNARA_RELAY_WS_HOST", cfg.WSHost)
	cfg.WSPort = envInt("OMNARA_RELAY_WS_PORT", cfg.WSPort)
	cfg.HistoryBytes = envInt("OMNARA_RELAY_HISTORY_BYTES", cfg.HistoryBytes)
	cfg.HeartbeatInterval = time.Duration(envInt("OMNARA_RELAY_HEARTBEAT_INTERVAL", int(cfg.HeartbeatInterval/time.Second))) * time.Second
	cfg.HeartbeatMissLimit = envInt("OMNARA_RELAY_HEARTBEAT_MISS_LIMIT", cfg.HeartbeatMissLimit)
	cfg.EndedRetention = time.Duration(envInt("OMNARA_RELAY_ENDED_RETENTION", int(cfg.EndedRetention/time.Second))) * time.Second
	cfg.AllowedOrigins = envList("OMNARA_RELAY_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.JWTKey = os.Getenv("OMNARA_RELAY_JWT_KEY")

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

// ApplyFile merges an optional YAML override file into cfg; env-derived
// values win where both set the same field (the file only ever supplies
// what the environment left at its default), matching the teacher's
// precedence of env over on-disk config.
func ApplyFile(cfg *RelayConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var override fileOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if override.HistoryBytes != nil && os.Getenv("OMNARA_RELAY_HISTORY_BYTES") == "" {
		cfg.HistoryBytes = *override.HistoryBytes
	}
	if override.HeartbeatInterval != nil && os.Getenv("OMNARA_RELAY_HEARTBEAT_INTERVAL") == "" {
		cfg.HeartbeatInterval = time.Duration(*override.HeartbeatInterval) * time.Second
	}
	if len(override.AllowedOrigins) > 0 && os.Getenv("OMNARA_RELAY_ALLOWED_ORIGINS") == "" {
		cfg.AllowedOrigins = override.AllowedOrigins
	}
	return nil
}

// Watcher hot-reloads the mutable subset of RelayConfig from a YAML file
// on change, the same watch-and-reload shape as the teacher's --dev
// template reload path.
type Watcher struct {
	mu     sync.RWMutex
	cfg    RelayConfig
	path   string
	logger *zap.Logger
}

// NewWatcher starts watching path (if it exists) for changes, applying them
// on top of base. Call Snapshot to read the current merged config.
func NewWatcher(base RelayConfig, path string, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{cfg: base, path: path, logger: logger}
	if err := ApplyFile(&w.cfg, path); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		// No override file present — nothing to watch.
		return w, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: start watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	go w.watchLoop(watcher)
	return w, nil
}

func (w *Watcher) watchLoop(watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for event := range watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		w.mu.Lock()
		reloaded := w.cfg
		err := ApplyFile(&reloaded, w.path)
		if err == nil {
			w.cfg = reloaded
		}
		w.mu.Unlock()
		if err != nil && w.logger != nil {
			w.logger.Warn("config reload failed", zap.String("path", w.path), zap.Error(err))
		} else if w.logger != nil {
			w.logger.Info("config reloaded", zap.String("path", w.path))
		}
	}
}

// Snapshot returns the current merged configuration.
func (w *Watcher) Snapshot() RelayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}
