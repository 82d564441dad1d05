// Package config loads avscope settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all avscope configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Waveform WaveformConfig `yaml:"waveform"`
	Cache    CacheConfig    `yaml:"cache"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// AnalysisConfig controls the live analysis loop.
type AnalysisConfig struct {
	RateHz      int           `yaml:"rate_hz"`
	Width       int           `yaml:"width"`
	Settle      time.Duration `yaml:"settle"`
	FFTSize     int           `yaml:"fft_size"`
	Smoothing   float64       `yaml:"smoothing"`
	MaxContexts int           `yaml:"max_contexts"`
	FFmpeg      string        `yaml:"ffmpeg"`
	FFprobe     string        `yaml:"ffprobe"`
	MainsHz     int           `yaml:"mains_hz"` // 0 detects from the local timezone
}

// WaveformConfig controls waveform computation.
type WaveformConfig struct {
	Buckets          int           `yaml:"buckets"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// CacheConfig controls the local and remote waveform tiers.
type CacheConfig struct {
	DBPath        string        `yaml:"db_path"`
	Prefix        string        `yaml:"prefix"`
	MaxEntries    int           `yaml:"max_entries"`
	QuotaBytes    int64         `yaml:"quota_bytes"`
	RemoteURL     string        `yaml:"remote_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
}

// FetchConfig controls media retrieval.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// ServerConfig controls the shared waveform server.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	DBPath     string `yaml:"db_path"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (c *Config) defaults() {
	if c.Analysis.RateHz == 0 {
		c.Analysis.RateHz = 15
	}
	if c.Analysis.Width == 0 {
		c.Analysis.Width = 128
	}
	if c.Analysis.Settle == 0 {
		c.Analysis.Settle = 50 * time.Millisecond
	}
	if c.Analysis.FFTSize == 0 {
		c.Analysis.FFTSize = 512
	}
	if c.Analysis.Smoothing == 0 {
		c.Analysis.Smoothing = 0.2
	}
	if c.Analysis.MaxContexts == 0 {
		c.Analysis.MaxContexts = 6
	}
	if c.Analysis.FFmpeg == "" {
		c.Analysis.FFmpeg = "ffmpeg"
	}
	if c.Analysis.FFprobe == "" {
		c.Analysis.FFprobe = "ffprobe"
	}
	if c.Waveform.Buckets == 0 {
		c.Waveform.Buckets = 150
	}
	if c.Waveform.ProgressInterval == 0 {
		c.Waveform.ProgressInterval = 16 * time.Millisecond
	}
	if c.Cache.DBPath == "" {
		c.Cache.DBPath = defaultCachePath("cache.db")
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "avscope_waveform_cache_"
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 50
	}
	if c.Cache.QuotaBytes == 0 {
		c.Cache.QuotaBytes = 5 << 20
	}
	if c.Cache.RemoteTimeout == 0 {
		c.Cache.RemoteTimeout = 5 * time.Second
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 60 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 512 << 20
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "avscope/1.0"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultCachePath("waveforms.db")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// defaultCachePath places name in the user cache directory, falling back to
// the working directory.
func defaultCachePath(name string) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "avscope", name)
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the analysis and cache layers cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	a := c.Analysis
	check(a.RateHz > 0 && a.RateHz <= 120, "analysis.rate_hz must be in 1..120, got %d", a.RateHz)
	check(a.Width > 0, "analysis.width must be positive, got %d", a.Width)
	check(a.Settle >= 0, "analysis.settle must not be negative")
	check(a.FFTSize >= 32 && bits.OnesCount(uint(a.FFTSize)) == 1,
		"analysis.fft_size must be a power of two >= 32, got %d", a.FFTSize)
	check(a.Smoothing >= 0 && a.Smoothing < 1, "analysis.smoothing must be in [0, 1), got %v", a.Smoothing)
	check(a.MaxContexts > 0, "analysis.max_contexts must be positive, got %d", a.MaxContexts)
	check(a.MainsHz == 0 || a.MainsHz == 50 || a.MainsHz == 60,
		"analysis.mains_hz must be 0, 50 or 60, got %d", a.MainsHz)

	check(c.Waveform.Buckets > 0 && c.Waveform.Buckets <= 10000,
		"waveform.buckets must be in 1..10000, got %d", c.Waveform.Buckets)
	check(c.Waveform.ProgressInterval > 0, "waveform.progress_interval must be positive")

	check(c.Cache.MaxEntries > 1, "cache.max_entries must be at least 2, got %d", c.Cache.MaxEntries)
	check(c.Cache.QuotaBytes >= 0, "cache.quota_bytes must not be negative")
	check(c.Cache.RemoteTimeout > 0, "cache.remote_timeout must be positive")

	check(c.Fetch.Timeout > 0, "fetch.timeout must be positive")
	check(c.Fetch.MaxBytes > 0, "fetch.max_bytes must be positive")

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
