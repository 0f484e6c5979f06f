// Package config handles dommirror configuration from YAML files and
// command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors. Both abort the run before any page is loaded.
var (
	ErrNoDest      = errors.New("config: a destination folder is required")
	ErrDestMissing = errors.New("config: destination folder does not exist")
)

// Config is the top-level dommirror configuration.
type Config struct {
	Dest     string        `yaml:"dest"`
	Metadata bool          `yaml:"metadata"`
	Markdown bool          `yaml:"markdown"`
	Source   string        `yaml:"source"` // browser | http | auto
	Pages    []string      `yaml:"pages"`
	Browser  BrowserConfig `yaml:"browser"`
	Settle   SettleConfig  `yaml:"settle"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Sinks    []SinkConfig  `yaml:"sinks"`
	IDPrefix string        `yaml:"id_prefix"` // prepended to report IDs
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`  // control URL of an external Chrome; empty = launch
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NoSandbox        *bool         `yaml:"no_sandbox"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// SettleConfig controls what happens between load and extraction.
type SettleConfig struct {
	Idle   time.Duration `yaml:"idle"`
	Scroll *bool         `yaml:"scroll"`
}

// FetchConfig controls resource downloads.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"` // per resource
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	Workers   int           `yaml:"workers"`
	Rate      float64       `yaml:"rate"` // requests per second, 0 = unlimited
}

// SinkConfig defines a report output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// Source modes.
const (
	SourceBrowser = "browser"
	SourceHTTP    = "http"
	SourceAuto    = "auto"
)

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields. Safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.Source == "" {
		c.Source = SourceBrowser
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.NoSandbox == nil {
		noSandbox := true
		c.Browser.NoSandbox = &noSandbox
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Settle.Idle <= 0 {
		c.Settle.Idle = 100 * time.Millisecond
	}
	if c.Settle.Scroll == nil {
		scroll := true
		c.Settle.Scroll = &scroll
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.Workers <= 0 {
		c.Fetch.Workers = 1
	}
}

// Validate checks what must hold before any browsing starts.
func (c *Config) Validate() error {
	if c.Dest == "" {
		return ErrNoDest
	}
	info, err := os.Stat(c.Dest)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestMissing, c.Dest)
	}
	switch c.Source {
	case SourceBrowser, SourceHTTP, SourceAuto:
	default:
		return fmt.Errorf("config: unknown source %q (want browser, http or auto)", c.Source)
	}
	return nil
}
