package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
dataset:
  path: "/data/listings.json"
search:
  semantic_weight: 0.25
  max_top_n: 40
watcher:
  debounce: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Dataset.Path != "/data/listings.json" {
		t.Errorf("dataset path = %s", cfg.Dataset.Path)
	}
	if cfg.Search.SemanticWeight != 0.25 {
		t.Errorf("semantic_weight = %v, want 0.25", cfg.Search.SemanticWeight)
	}
	if cfg.Search.MaxTopN != 40 || cfg.Search.DefaultTopN != 10 {
		t.Errorf("top_n = %d/%d, want 10/40", cfg.Search.DefaultTopN, cfg.Search.MaxTopN)
	}
	if cfg.Watcher.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watcher.Debounce)
	}
	if !cfg.Watcher.Enabled || !cfg.Search.SpellCheck {
		t.Error("watcher and spell check should stay enabled by default")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_noFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.SemanticWeight != 0.6 {
		t.Errorf("default semantic_weight = %v, want 0.6", cfg.Search.SemanticWeight)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Dataset.Path != "data/franchises.json" {
		t.Errorf("relative dataset path should be kept without a config file: %s", cfg.Dataset.Path)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_zeroWeightKept(t *testing.T) {
	path := writeConfig(t, "search:\n  semantic_weight: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.SemanticWeight != 0 {
		t.Errorf("semantic_weight = %v, want 0", cfg.Search.SemanticWeight)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("FRANSEARCH_SERVER__PORT", "9100")
	t.Setenv("FRANSEARCH_SEARCH__MAX_TOP_N", "25")
	t.Setenv("FRANSEARCH_SERVER__ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FRANSEARCH_ADMIN__API_KEY", "secret")
	t.Setenv("FRANSEARCH_EMBEDDING__TIMEOUT", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Search.MaxTopN != 25 {
		t.Errorf("max_top_n = %d, want 25", cfg.Search.MaxTopN)
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("allowed_origins = %v", got)
	}
	if cfg.Admin.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Admin.APIKey)
	}
	if cfg.Embedding.Timeout != 2*time.Second {
		t.Errorf("embedding timeout = %v", cfg.Embedding.Timeout)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
dataset:
  path: "./data/listings.json"
models:
  dir: "models/current"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "listings.json"); cfg.Dataset.Path != want {
		t.Errorf("dataset path = %s, want %s", cfg.Dataset.Path, want)
	}
	if want := filepath.Join(dir, "models", "current"); cfg.Models.Dir != want {
		t.Errorf("models dir = %s, want %s", cfg.Models.Dir, want)
	}
}

func TestExpandPath_home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := expandPath("~/models", "/etc/fransearch"), filepath.Join(home, "models"); got != want {
		t.Errorf("expandPath = %s, want %s", got, want)
	}
	if got := expandPath("/abs/path", "/etc/fransearch"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"weight above one", func(c *Config) { c.Search.SemanticWeight = 1.5 }, "semantic_weight"},
		{"negative weight", func(c *Config) { c.Search.SemanticWeight = -0.1 }, "semantic_weight"},
		{"default above max", func(c *Config) { c.Search.DefaultTopN = 80 }, "default_top_n"},
		{"unknown transform", func(c *Config) { c.Search.Transform = "sigmoid" }, "transform"},
		{"unknown index", func(c *Config) { c.Models.IndexType = "hnsw" }, "index_type"},
		{"unknown backend", func(c *Config) { c.Embedding.Backend = "openai" }, "embedding.backend"},
		{"bucket required", func(c *Config) { c.Backup.Enabled = true; c.Backup.Backend = "s3" }, "backup.bucket"},
		{"dir required", func(c *Config) { c.Backup.Enabled = true; c.Backup.Backend = "fs" }, "backup.dir"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"encoder outlives request", func(c *Config) { c.Embedding.Timeout = c.Server.RequestTimeout }, "embedding.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Search.DefaultTopN != 10 || cfg.Search.MaxTopN != 50 {
		t.Errorf("default top_n: got %d/%d", cfg.Search.DefaultTopN, cfg.Search.MaxTopN)
	}
	if cfg.Search.SemanticWeight != 0 {
		t.Error("ApplyDefaults must not touch semantic_weight")
	}
	if cfg.Watcher.Debounce != 400*time.Millisecond {
		t.Errorf("default debounce: got %v", cfg.Watcher.Debounce)
	}
	if cfg.Backup.KeepVersions != 5 {
		t.Errorf("default keep_versions: got %d", cfg.Backup.KeepVersions)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Dataset.Path = "/tmp/listings.json"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Dataset.Path != "/tmp/listings.json" {
		t.Errorf("loaded dataset path: got %s", loaded.Dataset.Path)
	}
}

func TestMarshal_masksAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Admin.APIKey = "secret"
	data, err := Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("api key should be masked")
	}
	if cfg.Admin.APIKey != "secret" {
		t.Error("Marshal must not modify its input")
	}
}
