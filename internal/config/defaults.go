package config

import "time"

// Default returns the built-in configuration. Load layers the config file
// and the environment over it.
func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		Search: SearchConfig{
			SemanticWeight: 0.6,
			Transform:      "inverse",
			SpellCheck:     true,
		},
		Watcher: WatcherConfig{
			Enabled: true,
		},
		Backup: BackupConfig{
			Backend: "s3",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
// SemanticWeight is left alone since 0 is a valid weight.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 300
	}
	if cfg.Server.AdminRateLimit == 0 {
		cfg.Server.AdminRateLimit = 30
	}
	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = "data/franchises.json"
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "models/current"
	}
	if cfg.Models.IndexType == "" {
		cfg.Models.IndexType = "flat"
	}
	if cfg.Models.MaxFeatures == 0 {
		cfg.Models.MaxFeatures = 500
	}
	if cfg.Models.NGramMax == 0 {
		cfg.Models.NGramMax = 2
	}
	if cfg.Models.RunLogPath == "" {
		cfg.Models.RunLogPath = "models/training.db"
	}
	if cfg.Search.DefaultTopN == 0 {
		cfg.Search.DefaultTopN = 10
	}
	if cfg.Search.MaxTopN == 0 {
		cfg.Search.MaxTopN = 50
	}
	if cfg.Search.Transform == "" {
		cfg.Search.Transform = "inverse"
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "hash"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 5 * time.Second
	}
	if cfg.Embedding.BreakerFailures == 0 {
		cfg.Embedding.BreakerFailures = 5
	}
	if cfg.Embedding.BreakerOpen == 0 {
		cfg.Embedding.BreakerOpen = 30 * time.Second
	}
	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = "fransearch"
	}
	if cfg.Backup.KeepVersions == 0 {
		cfg.Backup.KeepVersions = 5
	}
	if cfg.Watcher.Debounce == 0 {
		cfg.Watcher.Debounce = 400 * time.Millisecond
	}
}
