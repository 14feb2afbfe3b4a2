package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the image scraper
type Config struct {
	// Engine selection and per-engine settings
	Engines EnginesConfig `yaml:"engines" json:"engines"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Resolution and post-processing filters
	Filter FilterConfig `yaml:"filter" json:"filter"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EnginesConfig selects which engines run and tunes their scraping behavior
type EnginesConfig struct {
	Enabled   []string `yaml:"enabled" json:"enabled"`
	UserAgent string   `yaml:"user_agent" json:"user_agent"`
	// MaxMissed is the number of consecutive filter/fetch misses after which
	// an engine stops requesting more candidates.
	MaxMissed int `yaml:"max_missed" json:"max_missed"`
	// PageDepth is the same-host link recursion depth for the page engine.
	PageDepth int `yaml:"page_depth" json:"page_depth"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	NumImages     int           `yaml:"num_images" json:"num_images"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	KeepFilenames bool          `yaml:"keep_filenames" json:"keep_filenames"`
}

// FilterConfig holds resolution bounds and post-processing options.
// Zero values mean "no bound" / "disabled".
type FilterConfig struct {
	MinWidth           int  `yaml:"min_width" json:"min_width"`
	MinHeight          int  `yaml:"min_height" json:"min_height"`
	MaxWidth           int  `yaml:"max_width" json:"max_width"`
	MaxHeight          int  `yaml:"max_height" json:"max_height"`
	ConvertWebP        bool `yaml:"convert_webp" json:"convert_webp"`
	CompressionQuality int  `yaml:"compression_quality" json:"compression_quality"`
	ResizeWidth        int  `yaml:"resize_width" json:"resize_width"`
	ResizeHeight       int  `yaml:"resize_height" json:"resize_height"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engines: EnginesConfig{
			Enabled: []string{"bing"},
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
			MaxMissed: 10,
			PageDepth: 0,
		},
		Download: DownloadConfig{
			NumImages:     10,
			Timeout:       15 * time.Second,
			RetryAttempts: 3,
			KeepFilenames: false,
		},
		// All filter bounds default to zero so no image is dropped unless
		// the user asks for it.
		Filter: FilterConfig{},
		Output: OutputConfig{
			BaseDirectory: "./downloads",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if engines := os.Getenv("IMGGRAB_ENGINES"); engines != "" {
		c.Engines.Enabled = splitAndTrim(engines)
	}
	if ua := os.Getenv("IMGGRAB_USER_AGENT"); ua != "" {
		c.Engines.UserAgent = ua
	}
	if outputDir := os.Getenv("IMGGRAB_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if num := os.Getenv("IMGGRAB_NUM_IMAGES"); num != "" {
		var val int
		fmt.Sscanf(num, "%d", &val)
		if val > 0 {
			c.Download.NumImages = val
		}
	}
	if rpm := os.Getenv("IMGGRAB_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if keep := os.Getenv("IMGGRAB_KEEP_FILENAMES"); keep != "" {
		c.Download.KeepFilenames = strings.ToLower(keep) == "true"
	}
	if logLevel := os.Getenv("IMGGRAB_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".imggrab.yaml",
		".imggrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "imggrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "imggrab", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".imggrab.yaml"),
		filepath.Join(os.Getenv("HOME"), ".imggrab.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// knownEngines are the engine names accepted by Validate.
var knownEngines = map[string]bool{
	"bing":   true,
	"google": true,
	"page":   true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if len(c.Engines.Enabled) == 0 {
		errs = append(errs, errors.New("at least one engine must be enabled"))
	}
	for _, name := range c.Engines.Enabled {
		if !knownEngines[strings.ToLower(name)] {
			errs = append(errs, fmt.Errorf("unknown engine: %s", name))
		}
	}
	if c.Engines.MaxMissed <= 0 {
		errs = append(errs, errors.New("max missed count must be positive"))
	}
	if c.Engines.PageDepth < 0 {
		errs = append(errs, errors.New("page depth cannot be negative"))
	}

	if c.Download.NumImages <= 0 {
		errs = append(errs, errors.New("number of images must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}

	if c.Filter.MinWidth < 0 || c.Filter.MinHeight < 0 {
		errs = append(errs, errors.New("minimum resolution cannot be negative"))
	}
	if c.Filter.MaxWidth < 0 || c.Filter.MaxHeight < 0 {
		errs = append(errs, errors.New("maximum resolution cannot be negative"))
	}
	if c.Filter.CompressionQuality < 0 || c.Filter.CompressionQuality > 100 {
		errs = append(errs, errors.New("compression quality must be between 0 and 100"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if engines, ok := flags["engines"].([]string); ok && len(engines) > 0 {
		c.Engines.Enabled = engines
	}
	if num, ok := flags["num-images"].(int); ok && num > 0 {
		c.Download.NumImages = num
	}
	if outputDir, ok := flags["output-dir"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if keep, ok := flags["keep-filenames"].(bool); ok {
		c.Download.KeepFilenames = keep
	}
	if convert, ok := flags["convert-webp"].(bool); ok {
		c.Filter.ConvertWebP = convert
	}
	if quality, ok := flags["compression-quality"].(int); ok && quality > 0 {
		c.Filter.CompressionQuality = quality
	}
	if w, ok := flags["resize-width"].(int); ok && w > 0 {
		c.Filter.ResizeWidth = w
	}
	if h, ok := flags["resize-height"].(int); ok && h > 0 {
		c.Filter.ResizeHeight = h
	}
	if res, ok := flags["min-resolution"].([]int); ok && len(res) == 2 {
		c.Filter.MinWidth, c.Filter.MinHeight = res[0], res[1]
	}
	if res, ok := flags["max-resolution"].([]int); ok && len(res) == 2 {
		c.Filter.MaxWidth, c.Filter.MaxHeight = res[0], res[1]
	}
	if missed, ok := flags["max-missed"].(int); ok && missed > 0 {
		c.Engines.MaxMissed = missed
	}
	if depth, ok := flags["depth"].(int); ok && depth > 0 {
		c.Engines.PageDepth = depth
	}
	if timeout, ok := flags["timeout"].(time.Duration); ok && timeout > 0 {
		c.Download.Timeout = timeout
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if retries, ok := flags["max-retries"].(int); ok && retries >= 0 {
		c.Download.RetryAttempts = retries
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".imggrab.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
