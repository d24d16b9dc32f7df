// Package config handles driver configuration: run options read from a
// YAML file.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level run configuration. cmd/rambler does not load
// it; that command takes every run option from its own flags.
type Config struct {
	Browser       BrowserConfig `yaml:"browser"`
	Specification string        `yaml:"specification"`
	Seed          string        `yaml:"seed"`
	TraceDir      string        `yaml:"trace_dir"`
	ExitOnViolation bool        `yaml:"exit_on_violation"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// BrowserConfig controls Chrome lifecycle for the run.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headless         bool     `yaml:"headless"`
	Sandbox          bool     `yaml:"sandbox"`
	Width            int      `yaml:"width"`
	Height           int      `yaml:"height"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1024
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 768
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.TraceDir == "" {
		c.TraceDir = "./rambler-trace"
	}
}
