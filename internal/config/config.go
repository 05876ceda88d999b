// Package config loads the layered configuration every component reads at
// construction time: built-in defaults, then an optional config.yaml under
// ARC_CONFIG_DIR, then .env files, then explicit environment variables —
// each layer overriding the previous.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates every component's settings, loaded once at process
// start and passed down to constructors.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	GitHub GitHubConfig `yaml:"github"`
	Cache  CacheConfig  `yaml:"cache"`
	Trace  TraceConfig  `yaml:"trace"`
	Impact ImpactConfig `yaml:"impact"`
	Export ExportConfig `yaml:"export"`
	LogLevel string     `yaml:"log_level"`
}

// StoreConfig configures the embedded node/edge store.
type StoreConfig struct {
	Path            string `yaml:"path"`
	CompressionPage bool   `yaml:"compress_pages"`
}

// GitHubConfig configures the remote issue/PR ingestor.
type GitHubConfig struct {
	Token          string `yaml:"token"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// CacheConfig configures the Query Facade's in-process TTL cache.
type CacheConfig struct {
	Directory string        `yaml:"directory"`
	TTL       time.Duration `yaml:"ttl"`
}

// TraceConfig configures the decision-trail engine.
type TraceConfig struct {
	LatencyBudget time.Duration `yaml:"latency_budget"`
	MaxDepth      int           `yaml:"max_depth"`
	MaxResults    int           `yaml:"max_results"`
}

// ImpactConfig configures the blast-radius engine.
type ImpactConfig struct {
	MaxDepth        int     `yaml:"max_depth"`
	DecayFactor     float64 `yaml:"decay_factor"`
	CoChangeMinFreq float64 `yaml:"co_change_min_frequency"`
}

// ExportConfig configures the snapshot exporter.
type ExportConfig struct {
	Compress      bool   `yaml:"compress"`
	SigningKeyPath string `yaml:"signing_key_path"`
}

// Default returns the built-in configuration, used whenever no config file
// or env var overrides a field.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			Path:            filepath.Join(homeDir, ".arc", "graph.db"),
			CompressionPage: false,
		},
		GitHub: GitHubConfig{
			RateLimitPerSec: 10,
		},
		Cache: CacheConfig{
			Directory: filepath.Join(homeDir, ".arc", "cache"),
			TTL:       5 * time.Minute,
		},
		Trace: TraceConfig{
			LatencyBudget: 200 * time.Millisecond,
			MaxDepth:      6,
			MaxResults:    50,
		},
		Impact: ImpactConfig{
			MaxDepth:        4,
			DecayFactor:     0.5,
			CoChangeMinFreq: 0.3,
		},
		Export: ExportConfig{
			Compress: false,
		},
		LogLevel: "info",
	}
}

// Load builds a Config by layering defaults, an optional config.yaml
// (searched under ARC_CONFIG_DIR, then ./.arc, then the repo root), .env
// files, and finally explicit ARC_* environment variable overrides.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("store", cfg.Store)
	v.SetDefault("github", cfg.GitHub)
	v.SetDefault("cache", cfg.Cache)
	v.SetDefault("trace", cfg.Trace)
	v.SetDefault("impact", cfg.Impact)
	v.SetDefault("export", cfg.Export)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("ARC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir := os.Getenv("ARC_CONFIG_DIR"); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".arc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadEnvFiles() {
	envFiles := []string{".env.local", ".env"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".arc", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

func applyEnvOverrides(cfg *Config) {
	if p := os.Getenv("ARC_DB_PATH"); p != "" {
		cfg.Store.Path = expandPath(p)
	}
	if v := os.Getenv("ARC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if token := os.Getenv("ARC_GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if rl := os.Getenv("ARC_GITHUB_RATE_LIMIT"); rl != "" {
		if f, err := strconv.ParseFloat(rl, 64); err == nil {
			cfg.GitHub.RateLimitPerSec = f
		}
	}
	if ttl := os.Getenv("ARC_CACHE_TTL_SECONDS"); ttl != "" {
		if n, err := strconv.Atoi(ttl); err == nil {
			cfg.Cache.TTL = time.Duration(n) * time.Second
		}
	}
	if ms := os.Getenv("ARC_TRACE_LATENCY_BUDGET_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Trace.LatencyBudget = time.Duration(n) * time.Millisecond
		}
	}
	if c := os.Getenv("ARC_EXPORT_COMPRESS"); c != "" {
		cfg.Export.Compress = c == "true" || c == "1"
	}
	if k := os.Getenv("ARC_EXPORT_SIGNING_KEY_PATH"); k != "" {
		cfg.Export.SigningKeyPath = expandPath(k)
	}
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save persists the configuration as config.yaml at path.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("store", c.Store)
	v.Set("github", c.GitHub)
	v.Set("cache", c.Cache)
	v.Set("trace", c.Trace)
	v.Set("impact", c.Impact)
	v.Set("export", c.Export)
	v.Set("log_level", c.LogLevel)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
