// Package config handles configuration loading from files and environment.
package config

import "runtime"

// Config holds all loom configuration settings. Config is merged from
// multiple sources: compiled-in defaults, auto-discovered config files,
// environment variables, and command-line flags.
type Config struct {
	Verbose     bool   `koanf:"verbose"`
	Quiet       bool   `koanf:"quiet"`
	Color       string `koanf:"color"` // auto, always, never
	Concurrency int    `koanf:"concurrency"` // 0 = auto (GOMAXPROCS)
	DebounceMs  int    `koanf:"debounce_ms"`
	Filter      string `koanf:"filter"`

	Watch WatchConfig `koanf:"watch"`
}

// WatchConfig holds watch-mode-specific settings.
type WatchConfig struct {
	DebounceMs      int `koanf:"debounce_ms"`
	StabilizationMs int `koanf:"stabilization_ms"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Verbose:     false,
		Quiet:       false,
		Color:       "auto",
		Concurrency: 0,
		DebounceMs:  100,
		Filter:      "",

		Watch: WatchConfig{
			DebounceMs:      100,
			StabilizationMs: 100,
		},
	}
}

// EffectiveConcurrency returns the actual worker count to use. If
// Concurrency is 0 (auto), it returns GOMAXPROCS.
func (c *Config) EffectiveConcurrency() int {
	if c.Concurrency <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Concurrency
}
