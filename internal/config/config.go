// Package config handles YAML configuration for Kartta.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/kartta/internal/filter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Config is the root configuration structure.
type Config struct {
	Regions  []string      `yaml:"regions"`
	Services []string      `yaml:"services"`
	AWS      AWSConfig     `yaml:"aws"`
	Scanner  ScannerConfig `yaml:"scanner"`
	Cache    CacheConfig   `yaml:"cache"`
	Filter   FilterConfig  `yaml:"filter"`
	Server   ServerConfig  `yaml:"server"`
	OTEL     OTELConfig    `yaml:"otel"`
	Log      LogConfig     `yaml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Profile string `yaml:"profile"`
}

// ScannerConfig holds scan pass settings.
type ScannerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	TargetTimeout     time.Duration `yaml:"target_timeout"`
	ScanTimeout       time.Duration `yaml:"scan_timeout"`
	ThrottleRetries   int           `yaml:"throttle_retries"`
	ThrottleBaseDelay time.Duration `yaml:"throttle_base_delay"`
}

// CacheConfig holds snapshot freshness settings. A zero TTL disables
// caching; a zero refresh interval disables background refresh.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// FilterConfig holds service and tag filters.
type FilterConfig struct {
	ExcludeServices []string          `yaml:"exclude_services"`
	IncludeTags     map[string]string `yaml:"include_tags"`
	ExcludeTags     map[string]string `yaml:"exclude_tags"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	CAFile      string        `yaml:"ca_file"`
	ServiceName string        `yaml:"service_name"`
	Traces      TracesConfig  `yaml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Default returns the configuration used for keys absent from a file.
func Default() *Config {
	return &Config{
		Scanner: ScannerConfig{
			Concurrency:       10,
			TargetTimeout:     30 * time.Second,
			ScanTimeout:       2 * time.Minute,
			ThrottleRetries:   3,
			ThrottleBaseDelay: 200 * time.Millisecond,
		},
		Cache:  CacheConfig{TTL: 5 * time.Minute},
		Server: ServerConfig{Addr: ":8080"},
		OTEL: OTELConfig{
			ServiceName: "kartta",
			Traces:      TracesConfig{SampleRate: 1.0},
		},
		Log: LogConfig{Level: "info", Format: LogFormatConsole},
	}
}

// Load reads, parses and validates a YAML config file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads and decodes a YAML config file without validating it, so
// callers can apply overrides first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, resource.NewError(resource.ErrKindConfiguration, "read config file", err)
	}
	return Decode(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes YAML over the defaults. Unknown keys are rejected.
func Decode(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, resource.NewError(resource.ErrKindConfiguration, "parse config", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills keys present in the file but left empty.
func applyDefaults(cfg *Config) {
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "kartta"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatConsole
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	for i, r := range cfg.Regions {
		cfg.Regions[i] = strings.TrimSpace(r)
	}
}

// Validate checks the configuration is valid. Every failure is a
// configuration error.
func (c *Config) Validate() error {
	if len(c.Regions) == 0 {
		return resource.Configurationf("regions: at least one region required")
	}
	for i, r := range c.Regions {
		if strings.TrimSpace(r) == "" {
			return resource.Configurationf("regions[%d]: blank region", i)
		}
	}
	if len(c.Services) == 0 {
		return resource.Configurationf("services: at least one service required")
	}
	if _, err := resource.ParseKinds(c.Services); err != nil {
		return err
	}
	if _, err := resource.ParseKinds(c.Filter.ExcludeServices); err != nil {
		return err
	}
	if len(c.Kinds()) == 0 {
		return resource.Configurationf("filter: every configured service is excluded")
	}

	if c.Scanner.Concurrency <= 0 {
		return resource.Configurationf("scanner: concurrency must be positive (got %d)", c.Scanner.Concurrency)
	}
	if c.Scanner.ThrottleRetries < 0 {
		return resource.Configurationf("scanner: throttle_retries must not be negative (got %d)", c.Scanner.ThrottleRetries)
	}
	durations := map[string]time.Duration{
		"scanner.target_timeout":      c.Scanner.TargetTimeout,
		"scanner.scan_timeout":        c.Scanner.ScanTimeout,
		"scanner.throttle_base_delay": c.Scanner.ThrottleBaseDelay,
		"cache.ttl":                   c.Cache.TTL,
		"cache.refresh_interval":      c.Cache.RefreshInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return resource.Configurationf("%s must not be negative (got %s)", name, d)
		}
	}

	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return resource.Configurationf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if c.OTEL.CAFile != "" && c.OTEL.Insecure {
		return resource.Configurationf("otel: ca_file and insecure are mutually exclusive")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return resource.NewError(resource.ErrKindConfiguration, "log.level", err)
	}
	switch c.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return resource.Configurationf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// Kinds returns the configured service kinds minus excluded ones, in
// configuration order. Invalid names are skipped; Validate reports them.
func (c *Config) Kinds() []resource.Kind {
	kinds, err := resource.ParseKinds(c.Services)
	if err != nil {
		return nil
	}
	excluded, _ := resource.ParseKinds(c.Filter.ExcludeServices)
	return filter.New(excluded, nil, nil).Kinds(kinds)
}

// TagFilter builds the record filter from the tag settings.
func (c *Config) TagFilter() *filter.Filter {
	excluded, _ := resource.ParseKinds(c.Filter.ExcludeServices)
	return filter.New(excluded, c.Filter.IncludeTags, c.Filter.ExcludeTags)
}

// String renders the effective settings for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("regions=%v services=%v concurrency=%d ttl=%s refresh=%s",
		c.Regions, c.Services, c.Scanner.Concurrency, c.Cache.TTL, c.Cache.RefreshInterval)
}
