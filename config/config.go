package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Conversion ConversionConfig `toml:"conversion"`
	Logging    LoggingConfig    `toml:"logging"`
	Tracing    TracingConfig    `toml:"tracing"`
}

type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port" validate:"min=1,max=65535"`
	UploadDir         string `toml:"upload_dir" validate:"required"`
	OutputDir         string `toml:"output_dir" validate:"required"`
	MaxUploadBytes    int64  `toml:"max_upload_bytes" validate:"gt=0"`
	ConversionTimeout string `toml:"conversion_timeout" validate:"required"` // e.g. "5m"
}

type ConversionConfig struct {
	DPI      int    `toml:"dpi" validate:"gte=0"`
	Renderer string `toml:"renderer" validate:"oneof=fitz poppler"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

type TracingConfig struct {
	Exporter     string `toml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `toml:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
	ServiceName  string `toml:"service_name" validate:"required"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8002,
			UploadDir:         "uploads",
			OutputDir:         "outputs",
			MaxUploadBytes:    50 * 1024 * 1024,
			ConversionTimeout: "5m",
		},
		Conversion: ConversionConfig{
			DPI:      600,
			Renderer: "fitz",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "pdfinvert",
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at path
// and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	c.Conversion.Renderer = strings.ToLower(strings.TrimSpace(c.Conversion.Renderer))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.ParseDuration(c.Server.ConversionTimeout); err != nil {
		return fmt.Errorf("invalid configuration: conversion_timeout: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Timeout returns the parsed conversion timeout. Validate guarantees it parses.
func (s ServerConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.ConversionTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// applyEnvOverrides lets PDFINVERT_* variables, and the plain names the web
// front end has always read, override file values. Prefixed names win.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = env(cfg.Server.Host, "PDFINVERT_HOST", "HOST")
	cfg.Server.Port = envInt(cfg.Server.Port, "PDFINVERT_PORT", "PORT")
	cfg.Server.UploadDir = env(cfg.Server.UploadDir, "PDFINVERT_UPLOAD_DIR", "UPLOAD_FOLDER")
	cfg.Server.OutputDir = env(cfg.Server.OutputDir, "PDFINVERT_OUTPUT_DIR", "OUTPUT_FOLDER")
	cfg.Server.MaxUploadBytes = envInt64(cfg.Server.MaxUploadBytes, "PDFINVERT_MAX_UPLOAD_BYTES", "MAX_FILE_SIZE")
	cfg.Server.ConversionTimeout = env(cfg.Server.ConversionTimeout, "PDFINVERT_CONVERSION_TIMEOUT")

	cfg.Conversion.DPI = envInt(cfg.Conversion.DPI, "PDFINVERT_DPI", "PDF_DPI")
	cfg.Conversion.Renderer = env(cfg.Conversion.Renderer, "PDFINVERT_RENDERER")

	cfg.Logging.Level = env(cfg.Logging.Level, "PDFINVERT_LOG_LEVEL")
	cfg.Logging.Format = env(cfg.Logging.Format, "PDFINVERT_LOG_FORMAT")

	cfg.Tracing.Exporter = env(cfg.Tracing.Exporter, "PDFINVERT_TRACING_EXPORTER")
	cfg.Tracing.OTLPEndpoint = env(cfg.Tracing.OTLPEndpoint, "PDFINVERT_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.Tracing.OTLPInsecure = envBool(cfg.Tracing.OTLPInsecure, "PDFINVERT_OTLP_INSECURE")
	cfg.Tracing.ServiceName = env(cfg.Tracing.ServiceName, "PDFINVERT_SERVICE_NAME", "OTEL_SERVICE_NAME")
}

// env returns the first non-empty variable among keys, or fallback.
func env(fallback string, keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value
		}
	}
	return fallback
}

func envInt(fallback int, keys ...string) int {
	value := env("", keys...)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(fallback int64, keys ...string) int64 {
	value := env("", keys...)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(fallback bool, keys ...string) bool {
	value := env("", keys...)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
