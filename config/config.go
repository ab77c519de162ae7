// Package config loads runtime configuration for the beatlink server from
// CLI flags and environment variables.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DeviceNumber    int
	StatusHTTPAddr  string
	MetricsAddr     string
	FindDetails     bool
	IdleTimeout     time.Duration
	ReconnectRateHz float64
	ReconnectBurst  int
	LogLevel        string
	LogFormat       string
}

const (
	defaultDeviceNumber    = 5 // default "virtual CDJ" identity posed to players
	defaultStatusHTTPAddr  = ":8000"
	defaultMetricsAddr     = ":9000"
	defaultIdleTimeout     = 30 * time.Second
	defaultReconnectRateHz = 5.0
	defaultReconnectBurst  = 3
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// envPrefix is the prefix for all beatlink environment variables.
const envPrefix = "BEATLINK_"

// Load parses configuration from CLI flags and environment variables.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("beatlink", flag.ContinueOnError)

	fs.IntVar(&cfg.DeviceNumber, "device-number", defaultDeviceNumber, "player number this process poses as when dialing player database servers")
	fs.StringVar(&cfg.StatusHTTPAddr, "status-http-addr", defaultStatusHTTPAddr, "listen address for the diagnostics HTTP server")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", defaultMetricsAddr, "listen address for the Prometheus metrics endpoint")
	fs.BoolVar(&cfg.FindDetails, "find-details", false, "fetch full waveform detail in addition to previews")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", defaultIdleTimeout, "idle duration after which a pooled player connection is closed")
	fs.Float64Var(&cfg.ReconnectRateHz, "reconnect-rate", defaultReconnectRateHz, "sustained reconnect attempts per second, per player")
	fs.IntVar(&cfg.ReconnectBurst, "reconnect-burst", defaultReconnectBurst, "burst of reconnect attempts allowed above the sustained rate")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag not explicitly
// provided on the command line, preserving CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"device-number":    envPrefix + "DEVICE_NUMBER",
		"status-http-addr": envPrefix + "STATUS_HTTP_ADDR",
		"metrics-addr":     envPrefix + "METRICS_ADDR",
		"find-details":     envPrefix + "FIND_DETAILS",
		"idle-timeout":     envPrefix + "IDLE_TIMEOUT",
		"reconnect-rate":   envPrefix + "RECONNECT_RATE",
		"reconnect-burst":  envPrefix + "RECONNECT_BURST",
		"log-level":        envPrefix + "LOG_LEVEL",
		"log-format":       envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "device-number":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.DeviceNumber = v
			}
		case "status-http-addr":
			cfg.StatusHTTPAddr = val
		case "metrics-addr":
			cfg.MetricsAddr = val
		case "find-details":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.FindDetails = v
			}
		case "idle-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.IdleTimeout = v
			}
		case "reconnect-rate":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.ReconnectRateHz = v
			}
		case "reconnect-burst":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ReconnectBurst = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.DeviceNumber < 1 || c.DeviceNumber > 255 {
		return fmt.Errorf("device-number must be between 1 and 255, got %d", c.DeviceNumber)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle-timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.ReconnectRateHz <= 0 {
		return fmt.Errorf("reconnect-rate must be positive, got %g", c.ReconnectRateHz)
	}
	if c.ReconnectBurst < 1 {
		return fmt.Errorf("reconnect-burst must be at least 1, got %d", c.ReconnectBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// and level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
