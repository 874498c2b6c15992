// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads check42 settings.
//
// Sources, highest precedence first: explicit overrides (command-line
// flags), CHECK42_* environment variables, a .check42.yaml file, and the
// built-in defaults. Nested keys map to env vars with underscores, so
// build.timeout is CHECK42_BUILD_TIMEOUT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the per-project config file looked up in the submission dir.
const FileName = ".check42.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHECK42"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full check42 configuration.
type Config struct {
	// Workers bounds concurrent file analysis; 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=256"`

	// RulesFile replaces the built-in project table when set.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`

	// AllowDefined also allows functions defined by the submission itself.
	AllowDefined bool `mapstructure:"allow_defined" yaml:"allow_defined"`

	Preprocessor PreprocessorConfig `mapstructure:"preprocessor" yaml:"preprocessor"`
	Build        BuildConfig        `mapstructure:"build" yaml:"build"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Norminette   NorminetteConfig   `mapstructure:"norminette" yaml:"norminette"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry" yaml:"telemetry"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Update       UpdateConfig       `mapstructure:"update" yaml:"update"`
}

type PreprocessorConfig struct {
	Command string        `mapstructure:"command" yaml:"command" validate:"required"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type BuildConfig struct {
	Command string        `mapstructure:"command" yaml:"command" validate:"required"`
	Settle  time.Duration `mapstructure:"settle" yaml:"settle" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
}

type NorminetteConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Command string        `mapstructure:"command" yaml:"command" validate:"required_if=Enabled true"`
	Docker  string        `mapstructure:"docker" yaml:"docker"`
	Image   string        `mapstructure:"image" yaml:"image" validate:"omitempty,pinned_image"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
}

type TelemetryConfig struct {
	// TraceExporter is none, stdout or otlp.
	TraceExporter string `mapstructure:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`

	// MetricExporter is none, stdout or prometheus.
	MetricExporter string `mapstructure:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`

	// OTLPEndpoint is used by the otlp trace exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port" validate:"gte=1,lte=65535"`

	// RateLimit is check requests per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" yaml:"burst" validate:"gte=0"`

	// Roots restricts the directories the check endpoint may inspect.
	Roots []string `mapstructure:"roots" yaml:"roots"`
}

type UpdateConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Workers: 0,
		Preprocessor: PreprocessorConfig{
			Command: "gcc",
			Args:    []string{"-E", "-std=c99", "-D__builtin_va_arg(v,t)=__builtin_va_arg(v,(t*)0)"},
			Timeout: 30 * time.Second,
		},
		Build: BuildConfig{
			Command: "make",
			Settle:  1100 * time.Millisecond,
			Timeout: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     30 * 24 * time.Hour,
		},
		Norminette: NorminetteConfig{
			Enabled: true,
			Command: "norminette",
			Docker:  "docker",
			Image:   "ghcr.io/42school/norminette:3.3.58",
			Timeout: 2 * time.Minute,
		},
		Log: LogConfig{Level: "warn"},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8042,
			RateLimit: 2,
			Burst:     4,
		},
		Update: UpdateConfig{
			Timeout: 3 * time.Second,
		},
	}
}

// LoadOptions selects config sources.
type LoadOptions struct {
	// File is an explicit config file; it must exist.
	File string

	// Dir is searched for FileName when File is empty. Missing is fine.
	Dir string

	// Overrides are dotted keys set with the highest precedence.
	Overrides map[string]any
}

// Load resolves the configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case opts.File != "":
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	case opts.Dir != "":
		path := filepath.Join(opts.Dir, FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workers", d.Workers)
	v.SetDefault("rules_file", d.RulesFile)
	v.SetDefault("allow_defined", d.AllowDefined)

	v.SetDefault("preprocessor.command", d.Preprocessor.Command)
	v.SetDefault("preprocessor.args", d.Preprocessor.Args)
	v.SetDefault("preprocessor.timeout", d.Preprocessor.Timeout)

	v.SetDefault("build.command", d.Build.Command)
	v.SetDefault("build.settle", d.Build.Settle)
	v.SetDefault("build.timeout", d.Build.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("norminette.enabled", d.Norminette.Enabled)
	v.SetDefault("norminette.command", d.Norminette.Command)
	v.SetDefault("norminette.docker", d.Norminette.Docker)
	v.SetDefault("norminette.image", d.Norminette.Image)
	v.SetDefault("norminette.timeout", d.Norminette.Timeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.dir", d.Log.Dir)

	v.SetDefault("telemetry.trace_exporter", d.Telemetry.TraceExporter)
	v.SetDefault("telemetry.metric_exporter", d.Telemetry.MetricExporter)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.otlp_insecure", d.Telemetry.OTLPInsecure)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.burst", d.Server.Burst)

	v.SetDefault("update.url", d.Update.URL)
	v.SetDefault("update.timeout", d.Update.Timeout)
}

// YAML renders the resolved configuration in config-file form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
