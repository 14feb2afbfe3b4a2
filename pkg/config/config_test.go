package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"bing"}, cfg.Engines.Enabled)
	assert.Equal(t, 10, cfg.Engines.MaxMissed)
	assert.Equal(t, 10, cfg.Download.NumImages)
	assert.Equal(t, 15*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "./downloads", cfg.Output.BaseDirectory)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)

	// No resolution filter unless the user sets one.
	assert.Zero(t, cfg.Filter.MinWidth)
	assert.Zero(t, cfg.Filter.MinHeight)
	assert.Zero(t, cfg.Filter.MaxWidth)
	assert.Zero(t, cfg.Filter.MaxHeight)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IMGGRAB_ENGINES", "bing, google")
	t.Setenv("IMGGRAB_OUTPUT_DIR", "/tmp/imggrab-test")
	t.Setenv("IMGGRAB_NUM_IMAGES", "25")
	t.Setenv("IMGGRAB_REQUESTS_PER_MINUTE", "30")
	t.Setenv("IMGGRAB_KEEP_FILENAMES", "true")
	t.Setenv("IMGGRAB_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, []string{"bing", "google"}, cfg.Engines.Enabled)
	assert.Equal(t, "/tmp/imggrab-test", cfg.Output.BaseDirectory)
	assert.Equal(t, 25, cfg.Download.NumImages)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.True(t, cfg.Download.KeepFilenames)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	content := `
engines:
  enabled: [google, page]
  page_depth: 2
download:
  num_images: 40
filter:
  min_width: 800
  min_height: 600
  convert_webp: true
output:
  base_directory: /tmp/pics
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, []string{"google", "page"}, cfg.Engines.Enabled)
	assert.Equal(t, 2, cfg.Engines.PageDepth)
	assert.Equal(t, 40, cfg.Download.NumImages)
	assert.Equal(t, 800, cfg.Filter.MinWidth)
	assert.Equal(t, 600, cfg.Filter.MinHeight)
	assert.True(t, cfg.Filter.ConvertWebP)
	assert.Equal(t, "/tmp/pics", cfg.Output.BaseDirectory)
	// Untouched settings keep their defaults.
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFromFileMissingIsNotFatal(t *testing.T) {
	cfg := DefaultConfig()
	// Empty path with no config file in default locations loads defaults.
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpHome))
	defer os.Chdir(origDir)

	assert.NoError(t, cfg.LoadFromFile(""))
}

func TestLoadFromFileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engines: [unclosed"), 0644))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"all engines", func(c *Config) { c.Engines.Enabled = []string{"bing", "google", "page"} }, true},
		{"no engines", func(c *Config) { c.Engines.Enabled = nil }, false},
		{"unknown engine", func(c *Config) { c.Engines.Enabled = []string{"altavista"} }, false},
		{"zero images", func(c *Config) { c.Download.NumImages = 0 }, false},
		{"negative retries", func(c *Config) { c.Download.RetryAttempts = -1 }, false},
		{"bad quality", func(c *Config) { c.Filter.CompressionQuality = 150 }, false},
		{"negative min resolution", func(c *Config) { c.Filter.MinWidth = -1 }, false},
		{"empty output dir", func(c *Config) { c.Output.BaseDirectory = "" }, false},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"negative page depth", func(c *Config) { c.Engines.PageDepth = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"engines":             []string{"google"},
		"num-images":          50,
		"output-dir":          "/tmp/out",
		"keep-filenames":      true,
		"convert-webp":        true,
		"compression-quality": 80,
		"min-resolution":      []int{640, 480},
		"max-resolution":      []int{3840, 2160},
		"max-missed":          5,
		"depth":               2,
		"timeout":             30 * time.Second,
		"rate-limit":          120,
		"max-retries":         1,
		"log-level":           "warn",
	})

	assert.Equal(t, []string{"google"}, cfg.Engines.Enabled)
	assert.Equal(t, 50, cfg.Download.NumImages)
	assert.Equal(t, "/tmp/out", cfg.Output.BaseDirectory)
	assert.True(t, cfg.Download.KeepFilenames)
	assert.True(t, cfg.Filter.ConvertWebP)
	assert.Equal(t, 80, cfg.Filter.CompressionQuality)
	assert.Equal(t, 640, cfg.Filter.MinWidth)
	assert.Equal(t, 480, cfg.Filter.MinHeight)
	assert.Equal(t, 3840, cfg.Filter.MaxWidth)
	assert.Equal(t, 2160, cfg.Filter.MaxHeight)
	assert.Equal(t, 5, cfg.Engines.MaxMissed)
	assert.Equal(t, 2, cfg.Engines.PageDepth)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 1, cfg.Download.RetryAttempts)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engines.Enabled = []string{"bing", "page"}
	cfg.Filter.MinWidth = 1024

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Engines.Enabled, loaded.Engines.Enabled)
	assert.Equal(t, 1024, loaded.Filter.MinWidth)
}

func TestLoadPrecedence(t *testing.T) {
	content := `
download:
  num_images: 20
rate_limit:
  requests_per_minute: 10
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// Env overrides file, flags override env.
	t.Setenv("IMGGRAB_REQUESTS_PER_MINUTE", "40")
	t.Setenv("IMGGRAB_NUM_IMAGES", "30")

	cfg, err := Load(path, map[string]interface{}{"num-images": 99})
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.Download.NumImages)
	assert.Equal(t, 40, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadRejectsInvalidResult(t *testing.T) {
	content := `
rate_limit:
  requests_per_minute: -5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}
