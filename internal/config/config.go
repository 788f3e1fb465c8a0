// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the TOML configuration of the tmtcpd daemon.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"code.hybscloud.com/mtcp"
)

const (
	kDefaultListen         = "127.0.0.1:7400"
	kDefaultMaxMessageSize = 1024 * 1024
	kDefaultLogLevel       = "info"
)

// Config is the daemon configuration.
type Config struct {
	Listen         string
	MaxMessageSize int
	IdleTimeout    time.Duration
	LogLevel       string
	LogNoColor     bool
	MetricsAddr    string
}

type fileConfig struct {
	Listen         string `toml:"listen"`
	MaxMessageSize int    `toml:"max_message_size"`
	IdleTimeout    string `toml:"idle_timeout"`
	LogLevel       string `toml:"log_level"`
	LogNoColor     bool   `toml:"log_nocolor"`
	MetricsAddr    string `toml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	cfg.SetDefaultIfNotDefined()
	return cfg
}

// Load reads the TOML file at path. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return Config{}, errors.Errorf("load config %s: unknown key %q", path, keys[0].String())
	}

	cfg := Config{}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse idle_timeout")
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_nocolor") {
		cfg.LogNoColor = raw.LogNoColor
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	cfg.SetDefaultIfNotDefined()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}

// SetDefaultIfNotDefined fills zero fields with their defaults.
func (c *Config) SetDefaultIfNotDefined() {
	if c.Listen == "" {
		c.Listen = kDefaultListen
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = kDefaultMaxMessageSize
	}
	if c.LogLevel == "" {
		c.LogLevel = kDefaultLogLevel
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.MaxMessageSize < 0 {
		return errors.Errorf("max_message_size %d is negative", c.MaxMessageSize)
	}
	// The id travels inside the MTCP payload.
	if int64(c.MaxMessageSize)+16 > mtcp.MaxPayloadLen {
		return errors.Errorf("max_message_size %d exceeds the MTCP payload limit", c.MaxMessageSize)
	}
	if c.IdleTimeout < 0 {
		return errors.Errorf("idle_timeout %s is negative", c.IdleTimeout)
	}
	if !strings.Contains(c.Listen, ":") {
		return errors.Errorf("listen %q is not host:port", c.Listen)
	}
	return nil
}
