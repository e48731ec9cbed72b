// Package config loads the retrieve command configuration from a YAML
// file, a .env file and RETRIEVE_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/national-talent-atm/data-retrieval/internal/logger"
	"github.com/national-talent-atm/data-retrieval/pkg/common/validation"
)

// AppName names the xdg directories and the default config file.
const AppName = "data-retrieval"

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RETRIEVE"

// KeyEnv is the legacy comma separated API key variable.
const KeyEnv = "ELSEVIER_KEY"

// Config is the full command configuration.
type Config struct {
	Elsevier  ElsevierConfig  `mapstructure:"elsevier"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       logger.Config   `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Target    string          `mapstructure:"target"`
}

// ElsevierConfig configures the API client.
type ElsevierConfig struct {
	Keys    []string      `mapstructure:"keys"`
	Rate    float64       `mapstructure:"rate"`
	BaseURL string        `mapstructure:"base_url"`
	Retries int           `mapstructure:"retries"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects and configures the response cache.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	Dir        string        `mapstructure:"dir"`
	Compress   bool          `mapstructure:"compress"`
	RedisAddr  string        `mapstructure:"redis_addr"`
	TTL        time.Duration `mapstructure:"ttl"`
	SQLitePath string        `mapstructure:"sqlite_path"`
}

// RateLimitConfig enables the shared Redis limiter when RedisAddr is set.
type RateLimitConfig struct {
	RedisAddr string `mapstructure:"redis_addr"`
	Key       string `mapstructure:"key"`
}

// PipelineConfig tunes the report pipelines.
type PipelineConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	HighWaterMark int `mapstructure:"high_water_mark"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Elsevier: ElsevierConfig{
			Rate:    10,
			BaseURL: "https://api.elsevier.com",
			Retries: 3,
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "file",
			Dir:     filepath.Join(xdg.CacheHome, AppName),
		},
		RateLimit: RateLimitConfig{Key: "elsevier"},
		Pipeline:  PipelineConfig{Concurrency: 4},
		Log:       logger.Config{Level: "info", Format: "console", Output: "stderr", Timestamp: true},
		Target:    "./target",
	}
}

// ApplyDefaults fills empty fields from Default.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Elsevier.Rate == 0 {
		c.Elsevier.Rate = d.Elsevier.Rate
	}
	if c.Elsevier.BaseURL == "" {
		c.Elsevier.BaseURL = d.Elsevier.BaseURL
	}
	if c.Elsevier.Timeout == 0 {
		c.Elsevier.Timeout = d.Elsevier.Timeout
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = d.Cache.Dir
	}
	if c.RateLimit.Key == "" {
		c.RateLimit.Key = d.RateLimit.Key
	}
	if c.Target == "" {
		c.Target = d.Target
	}
	c.Log.ApplyDefaults()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	checks := []func() error{
		func() error { return validation.ValidateNotEmptySlice("config", "elsevier.keys", c.Elsevier.Keys) },
		func() error { return validation.ValidatePositiveFloat("config", "elsevier.rate", c.Elsevier.Rate) },
		func() error { return validation.ValidateNonNegative("config", "elsevier.retries", c.Elsevier.Retries) },
		func() error {
			return validation.ValidateOneOf("config", "cache.backend", c.Cache.Backend, "file", "redis", "sqlite")
		},
		func() error {
			if c.Cache.Backend == "redis" {
				return validation.ValidateNotEmpty("config", "cache.redis_addr", c.Cache.RedisAddr)
			}
			return nil
		},
		func() error {
			return validation.ValidateNonNegative("config", "pipeline.concurrency", c.Pipeline.Concurrency)
		},
		func() error {
			return validation.ValidateNonNegative("config", "pipeline.high_water_mark", c.Pipeline.HighWaterMark)
		},
		c.Log.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// SQLitePath returns the sqlite database location, defaulting into Cache.Dir.
func (c *Config) SQLitePath() string {
	if c.Cache.SQLitePath != "" {
		return c.Cache.SQLitePath
	}
	return filepath.Join(c.Cache.Dir, "cache.db")
}

// LoaderConfig holds optional file overrides for Load.
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load reads the .env file first, then the YAML config file, then the
// environment, and returns the merged, defaulted configuration. It does
// not validate: commands that need no API key can still run.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	envFile := lc.EnvFile
	if envFile == "" && exists(".env") {
		envFile = ".env"
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := lc.ConfigFile
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Elsevier.Keys) == 0 {
		cfg.Elsevier.Keys = SplitKeys(os.Getenv(KeyEnv))
	} else {
		cfg.Elsevier.Keys = SplitKeys(strings.Join(cfg.Elsevier.Keys, ","))
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// SplitKeys splits a comma separated key list, trimming blanks.
func SplitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("elsevier.keys", []string{})
	v.SetDefault("elsevier.rate", d.Elsevier.Rate)
	v.SetDefault("elsevier.base_url", d.Elsevier.BaseURL)
	v.SetDefault("elsevier.retries", d.Elsevier.Retries)
	v.SetDefault("elsevier.timeout", d.Elsevier.Timeout)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.compress", d.Cache.Compress)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("cache.sqlite_path", "")
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.key", d.RateLimit.Key)
	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("pipeline.high_water_mark", d.Pipeline.HighWaterMark)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.no_color", d.Log.NoColor)
	v.SetDefault("log.timestamp", d.Log.Timestamp)
	v.SetDefault("log.caller", d.Log.Caller)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("target", d.Target)
}

func findConfigFile() string {
	if exists("config.yml") {
		return "config.yml"
	}
	if path, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yml")); err == nil {
		return path
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
