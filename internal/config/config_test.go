package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/national-talent-atm/data-retrieval/internal/testutil"
	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(KeyEnv, "")
	cfg, err := Load(WithConfigFile(writeFile(t, "config.yml", "target: ./out\n")))
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, cfg.Target, "./out")
	testutil.AssertEqual(t, cfg.Elsevier.Rate, 10.0)
	testutil.AssertEqual(t, cfg.Elsevier.BaseURL, "https://api.elsevier.com")
	testutil.AssertEqual(t, cfg.Elsevier.Timeout, 30*time.Second)
	testutil.AssertEqual(t, cfg.Cache.Backend, "file")
	testutil.AssertEqual(t, filepath.Base(cfg.Cache.Dir), AppName)
	testutil.AssertEqual(t, cfg.Pipeline.Concurrency, 4)
	testutil.AssertEqual(t, cfg.Log.Level, "info")
	testutil.AssertEqual(t, len(cfg.Elsevier.Keys), 0)

	testutil.AssertErrorIs(t, cfg.Validate(), errors.ErrInvalidConfiguration)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yml", `
elsevier:
  keys: [" k1 ", "k2"]
  rate: 2.5
  timeout: 5s
cache:
  backend: sqlite
pipeline:
  concurrency: 8
log:
  level: debug
  format: json
`)
	t.Setenv("RETRIEVE_PIPELINE_HIGH_WATER_MARK", "16")
	t.Setenv("RETRIEVE_LOG_LEVEL", "warn")

	cfg, err := Load(WithConfigFile(path))
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, cfg.Validate())

	testutil.AssertSliceEqual(t, cfg.Elsevier.Keys, []string{"k1", "k2"})
	testutil.AssertEqual(t, cfg.Elsevier.Rate, 2.5)
	testutil.AssertEqual(t, cfg.Elsevier.Timeout, 5*time.Second)
	testutil.AssertEqual(t, cfg.Cache.Backend, "sqlite")
	testutil.AssertEqual(t, cfg.SQLitePath(), filepath.Join(cfg.Cache.Dir, "cache.db"))
	testutil.AssertEqual(t, cfg.Pipeline.Concurrency, 8)
	testutil.AssertEqual(t, cfg.Pipeline.HighWaterMark, 16)
	testutil.AssertEqual(t, cfg.Log.Level, "warn")
	testutil.AssertEqual(t, cfg.Log.Format, "json")
}

func TestLoadLegacyKeyFromEnvFile(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv(KeyEnv) })
	os.Unsetenv(KeyEnv)

	envFile := writeFile(t, ".env", "ELSEVIER_KEY=alpha , beta,,gamma\n")
	cfg, err := Load(WithEnvFile(envFile), WithConfigFile(writeFile(t, "config.yml", "{}\n")))
	testutil.AssertNoError(t, err)
	testutil.AssertSliceEqual(t, cfg.Elsevier.Keys, []string{"alpha", "beta", "gamma"})
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "missing.yml")))
	testutil.AssertError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Elsevier.Keys = []string{"k"}
		return c
	}

	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults with key", func(*Config) {}, true},
		{"zero rate", func(c *Config) { c.Elsevier.Rate = 0 }, false},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "s3" }, false},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, false},
		{"redis with addr", func(c *Config) { c.Cache.Backend, c.Cache.RedisAddr = "redis", "localhost:6379" }, true},
		{"negative concurrency", func(c *Config) { c.Pipeline.Concurrency = -1 }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			err := c.Validate()
			if tt.ok {
				testutil.AssertNoError(t, err)
				return
			}
			if !errors.IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSplitKeys(t *testing.T) {
	testutil.AssertSliceEqual(t, SplitKeys(" a, b ,,c "), []string{"a", "b", "c"})
	testutil.AssertEqual(t, len(SplitKeys("")), 0)
}
