package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultMatchesSpec(t *testing.T) {
	cfg := Default()
	if cfg.WSHost != "0.0.0.0" || cfg.WSPort != 8787 {
		t.Errorf("unexpected host/port: %+v", cfg)
	}
	if cfg.HistoryBytes != 1048576 {
		t.Errorf("history bytes = %d, want 1048576", cfg.HistoryBytes)
	}
	if cfg.EndedRetention != 900*time.Second {
		t.Errorf("ended retention = %v, want 900s", cfg.EndedRetention)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("OMNARA_RELAY_WS_PORT", "9000")
	t.Setenv("OMNARA_RELAY_HISTORY_BYTES", "2048")
	t.Setenv("OMNARA_RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := FromEnv()
	if cfg.WSPort != 9000 {
		t.Errorf("port = %d, want 9000", cfg.WSPort)
	}
	if cfg.HistoryBytes != 2048 {
		t.Errorf("history bytes = %d, want 2048", cfg.HistoryBytes)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestApplyFileOnlyFillsEnvGaps(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/omnara-relay.yaml"
	if err := os.WriteFile(path, []byte("history_bytes: 4096\nallowed_origins: [\"https://file.example\"]\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg := Default()
	if err := ApplyFile(&cfg, path); err != nil {
		t.Fatalf("ApplyFile: %v", err)
	}
	if cfg.HistoryBytes != 4096 {
		t.Errorf("history bytes = %d, want 4096", cfg.HistoryBytes)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://file.example" {
		t.Errorf("allowed origins = %v", cfg.AllowedOrigins)
	}
}

func TestApplyFileMissingIsNotAnError(t *testing.T) {
	cfg := Default()
	if err := ApplyFile(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("ApplyFile on missing file: %v", err)
	}
}
