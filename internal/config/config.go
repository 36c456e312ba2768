// Package config provides configuration loading and structs for the
// fransearch server. Values are layered: built-in defaults, then the YAML
// file, then FRANSEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hyperjump/fransearch/internal/embedding"
	"github.com/hyperjump/fransearch/internal/vector"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates levels: FRANSEARCH_SEARCH__MAX_TOP_N sets search.max_top_n.
const EnvPrefix = "FRANSEARCH_"

// DefaultPaths are searched by FindConfigFile in order.
var DefaultPaths = []string{"fransearch.yaml", "config/fransearch.yaml", "~/.config/fransearch/config.yaml"}

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `koanf:"debug" yaml:"debug"`
	LogLevel  string          `koanf:"log_level" yaml:"log_level"`
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Dataset   DatasetConfig   `koanf:"dataset" yaml:"dataset"`
	Models    ModelsConfig    `koanf:"models" yaml:"models"`
	Search    SearchConfig    `koanf:"search" yaml:"search"`
	Embedding EmbeddingConfig `koanf:"embedding" yaml:"embedding"`
	Backup    BackupConfig    `koanf:"backup" yaml:"backup"`
	Watcher   WatcherConfig   `koanf:"watcher" yaml:"watcher"`
	Admin     AdminConfig     `koanf:"admin" yaml:"admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `koanf:"host" yaml:"host"`
	Port           int           `koanf:"port" yaml:"port"`
	ReadTimeout    time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout" yaml:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins" yaml:"allowed_origins"`
	// RateLimit and AdminRateLimit are requests per minute per client IP.
	RateLimit      int `koanf:"rate_limit" yaml:"rate_limit"`
	AdminRateLimit int `koanf:"admin_rate_limit" yaml:"admin_rate_limit"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatasetConfig locates the listings file.
type DatasetConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// ModelsConfig holds bundle storage and training settings.
type ModelsConfig struct {
	Dir         string `koanf:"dir" yaml:"dir"`
	IndexType   string `koanf:"index_type" yaml:"index_type"`
	MaxFeatures int    `koanf:"max_features" yaml:"max_features"`
	NGramMax    int    `koanf:"ngram_max" yaml:"ngram_max"`
	RunLogPath  string `koanf:"run_log_path" yaml:"run_log_path"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	SemanticWeight float64 `koanf:"semantic_weight" yaml:"semantic_weight"`
	DefaultTopN    int     `koanf:"default_top_n" yaml:"default_top_n"`
	MaxTopN        int     `koanf:"max_top_n" yaml:"max_top_n"`
	// Transform maps squared L2 distance to similarity: inverse or cosine.
	Transform  string `koanf:"transform" yaml:"transform"`
	SpellCheck bool   `koanf:"spell_check" yaml:"spell_check"`
}

// EmbeddingConfig holds encoder settings.
type EmbeddingConfig struct {
	Backend         string        `koanf:"backend" yaml:"backend"`
	ModelPath       string        `koanf:"model_path" yaml:"model_path"`
	Dimensions      int           `koanf:"dimensions" yaml:"dimensions"`
	MaxTokens       int           `koanf:"max_tokens" yaml:"max_tokens"`
	CacheSize       int           `koanf:"cache_size" yaml:"cache_size"`
	Workers         int           `koanf:"workers" yaml:"workers"`
	Timeout         time.Duration `koanf:"timeout" yaml:"timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures" yaml:"breaker_failures"`
	BreakerOpen     time.Duration `koanf:"breaker_open" yaml:"breaker_open"`
}

// BackupConfig selects the remote bundle store.
type BackupConfig struct {
	Enabled      bool   `koanf:"enabled" yaml:"enabled"`
	Backend      string `koanf:"backend" yaml:"backend"`
	Bucket       string `koanf:"bucket" yaml:"bucket"`
	Region       string `koanf:"region" yaml:"region"`
	Endpoint     string `koanf:"endpoint" yaml:"endpoint"`
	Prefix       string `koanf:"prefix" yaml:"prefix"`
	Dir          string `koanf:"dir" yaml:"dir"`
	KeepVersions int    `koanf:"keep_versions" yaml:"keep_versions"`
}

// WatcherConfig holds dataset file watch settings.
type WatcherConfig struct {
	Enabled     bool          `koanf:"enabled" yaml:"enabled"`
	Debounce    time.Duration `koanf:"debounce" yaml:"debounce"`
	AutoRetrain bool          `koanf:"auto_retrain" yaml:"auto_retrain"`
}

// AdminConfig protects the admin routes. An empty key disables them.
type AdminConfig struct {
	APIKey string `koanf:"api_key" yaml:"api_key"`
}

// sliceKeys may arrive from the environment as comma-separated strings.
var sliceKeys = []string{"server.allowed_origins"}

// Load layers defaults, the YAML file at path (skipped when path is empty)
// and the environment, then applies defaults, expands paths and validates.
// A .env file in the working directory is loaded into the environment
// first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configDir := ""
	if path != "" {
		path = expandHome(path)
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.Dataset.Path = expandPath(cfg.Dataset.Path, configDir)
	cfg.Models.Dir = expandPath(cfg.Models.Dir, configDir)
	cfg.Models.RunLogPath = expandPath(cfg.Models.RunLogPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Backup.Dir = expandPath(cfg.Backup.Dir, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindConfigFile returns the first existing file among DefaultPaths, or "".
func FindConfigFile() string {
	for _, p := range DefaultPaths {
		p = expandHome(p)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps FRANSEARCH_SEARCH__MAX_TOP_N to search.max_top_n.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Dataset.Path == "" {
		errs = append(errs, fmt.Errorf("dataset.path is required"))
	}
	if w := c.Search.SemanticWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("search.semantic_weight %v must be within [0, 1]", w))
	}
	if c.Search.MaxTopN < 1 {
		errs = append(errs, fmt.Errorf("search.max_top_n must be at least 1"))
	}
	if c.Search.DefaultTopN > c.Search.MaxTopN {
		errs = append(errs, fmt.Errorf("search.default_top_n %d exceeds max_top_n %d", c.Search.DefaultTopN, c.Search.MaxTopN))
	}
	if _, err := vector.ParseTransform(c.Search.Transform); err != nil {
		errs = append(errs, fmt.Errorf("search.transform: %w", err))
	}
	switch c.Models.IndexType {
	case string(vector.IndexTypeFlat), string(vector.IndexTypeFAISS), "memory":
	default:
		errs = append(errs, fmt.Errorf("models.index_type %q unknown (supported: flat, faiss)", c.Models.IndexType))
	}
	switch c.Embedding.Backend {
	case embedding.BackendHash, embedding.BackendONNX:
	default:
		errs = append(errs, fmt.Errorf("embedding.backend %q unknown (supported: onnx, hash)", c.Embedding.Backend))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive"))
	}
	// A slow encoder has to degrade before the request times out.
	if et, rt := c.Embedding.Timeout, c.Server.RequestTimeout; et > 0 && rt > 0 && et >= rt {
		errs = append(errs, fmt.Errorf("embedding.timeout %s must be shorter than server.request_timeout %s", et, rt))
	}
	if c.Backup.Enabled {
		switch c.Backup.Backend {
		case "s3", "gcs":
			if c.Backup.Bucket == "" {
				errs = append(errs, fmt.Errorf("backup.bucket is required for backend %s", c.Backup.Backend))
			}
		case "fs":
			if c.Backup.Dir == "" {
				errs = append(errs, fmt.Errorf("backup.dir is required for backend fs"))
			}
		default:
			errs = append(errs, fmt.Errorf("backup.backend %q unknown (supported: s3, gcs, fs)", c.Backup.Backend))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the config to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML. The admin key is masked.
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	if out.Admin.APIKey != "" {
		out.Admin.APIKey = "********"
	}
	data, err := yamlv3.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// expandPath resolves "~" against the home directory and relative paths
// against configDir when a config file was loaded.
func expandPath(path, configDir string) string {
	if path == "" {
		return path
	}
	path = expandHome(path)
	if filepath.IsAbs(path) || configDir == "" {
		return path
	}
	return filepath.Join(configDir, path)
}
