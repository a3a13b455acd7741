// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and watches ContourChat configuration.
//
// Configuration is layered: compiled-in defaults, then an optional YAML
// file, then environment variable overrides. The result is validated
// before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// Schema
// =============================================================================

// Config is the full ContourChat configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Sessions SessionsConfig `yaml:"sessions"`
	Errors   ErrorsConfig   `yaml:"errors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP service.
type ServerConfig struct {
	Port         int    `yaml:"port" validate:"gte=1,lte=65535"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// APIKey protects the /v1 API when set. Empty disables auth, which
	// is the local single-user default.
	APIKey string `yaml:"api_key"`
}

// LLMConfig selects and tunes the planning backend.
type LLMConfig struct {
	Backend       string  `yaml:"backend" validate:"oneof=ollama openai none"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gte=0"`
	RateBurst     int     `yaml:"rate_burst" validate:"gte=0"`
}

// SessionsConfig tunes session lifecycle.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"-" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"-" validate:"gt=0"`
	StoreDir      string        `yaml:"-"`
}

// sessionsYAML is the wire form of SessionsConfig. Durations are Go
// duration strings ("30m", "1h30m"), not bare nanosecond integers.
type sessionsYAML struct {
	TTL           string `yaml:"ttl,omitempty"`
	SweepInterval string `yaml:"sweep_interval,omitempty"`
	StoreDir      string `yaml:"store_dir,omitempty"`
}

// UnmarshalYAML decodes duration strings, keeping existing values for
// omitted fields so defaults survive partial config files.
func (s *SessionsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw sessionsYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.TTL != "" {
		d, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("sessions.ttl: %w", err)
		}
		s.TTL = d
	}
	if raw.SweepInterval != "" {
		d, err := time.ParseDuration(raw.SweepInterval)
		if err != nil {
			return fmt.Errorf("sessions.sweep_interval: %w", err)
		}
		s.SweepInterval = d
	}
	if raw.StoreDir != "" {
		s.StoreDir = raw.StoreDir
	}
	return nil
}

// MarshalYAML renders durations as strings for readable config files.
func (s SessionsConfig) MarshalYAML() (any, error) {
	return sessionsYAML{
		TTL:           s.TTL.String(),
		SweepInterval: s.SweepInterval.String(),
		StoreDir:      s.StoreDir,
	}, nil
}

// ErrorsConfig tunes the per-session error tracker.
type ErrorsConfig struct {
	MaxHistory int `yaml:"max_history" validate:"gt=0"`
	// AutoFix enables the single corrected-parameter retry after a
	// categorized invalid-value failure. Off by default.
	AutoFix bool `yaml:"auto_fix"`
}

// LoggingConfig mirrors pkg/logging options.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	LogDir string `yaml:"log_dir"`
	JSON   bool   `yaml:"json"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: 8085,
		},
		LLM: LLMConfig{
			Backend:       "ollama",
			RatePerSecond: 2,
			RateBurst:     4,
		},
		Sessions: SessionsConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Errors: ErrorsConfig{
			MaxHistory: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it.
//
// # Inputs
//
//   - path: YAML file location. An empty path or a missing file is fine;
//     defaults and environment apply alone. A present but malformed file
//     is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv layers CONTOUR_* environment variables over the loaded file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CONTOUR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CONTOUR_OTLP_ENDPOINT"); v != "" {
		cfg.Server.OTLPEndpoint = v
	}
	if v := os.Getenv("CONTOUR_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("CONTOUR_LLM_BACKEND"); v != "" {
		cfg.LLM.Backend = v
	}
	if v := os.Getenv("CONTOUR_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sessions.TTL = d
		}
	}
	if v := os.Getenv("CONTOUR_STORE_DIR"); v != "" {
		cfg.Sessions.StoreDir = v
	}
	if v := os.Getenv("CONTOUR_ERROR_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Errors.MaxHistory = n
		}
	}
	if v := os.Getenv("CONTOUR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
