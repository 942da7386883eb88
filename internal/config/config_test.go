package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Collector.Terms) != 13 {
		t.Errorf("expected 13 default terms, got %d", len(cfg.Collector.Terms))
	}
	if cfg.Collector.PageDelay != 100*time.Millisecond {
		t.Errorf("expected page_delay 100ms, got %v", cfg.Collector.PageDelay)
	}
	if cfg.Window() != 24*time.Hour {
		t.Errorf("expected 24h window, got %v", cfg.Window())
	}
	if cfg.Modeling.MinTopicSize != 10 {
		t.Errorf("expected min_topic_size 10, got %d", cfg.Modeling.MinTopicSize)
	}
	if cfg.Query.TrendMinCount != 10 || cfg.Query.KeywordTopN != 20 {
		t.Errorf("unexpected query defaults: %+v", cfg.Query)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
collector:
  terms: [economy, IT]
  window_hours: 12
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if len(cfg.Collector.Terms) != 2 {
		t.Errorf("expected 2 terms, got %v", cfg.Collector.Terms)
	}
	if cfg.Window() != 12*time.Hour {
		t.Errorf("expected 12h window, got %v", cfg.Window())
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Collector.Timezone != "Asia/Seoul" {
		t.Errorf("expected default timezone, got %q", cfg.Collector.Timezone)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %q", cfg.Database.Driver)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"timezone": "collector:\n  timezone: Mars/Olympus\n",
		"window":   "collector:\n  window_hours: 0\n",
		"driver":   "database:\n  driver: oracle\n",
		"provider": "modeling:\n  provider: magic\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parse([]byte(data)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !cfg.Sources.Naver.Enabled {
		t.Error("expected naver source enabled from file")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestGetDatabasePath(t *testing.T) {
	cfg := Default()
	if cfg.GetDatabasePath() == "" {
		t.Error("expected non-empty default database path")
	}

	cfg.Database.Path = "/custom/news.db"
	if cfg.GetDatabasePath() != "/custom/news.db" {
		t.Errorf("expected '/custom/news.db', got %q", cfg.GetDatabasePath())
	}
}
