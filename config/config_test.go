package config

import (
	"log/slog"
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"BEATLINK_DEVICE_NUMBER", "BEATLINK_LOG_LEVEL", "BEATLINK_RECONNECT_RATE",
		"BEATLINK_IDLE_TIMEOUT", "BEATLINK_FIND_DETAILS",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DeviceNumber != defaultDeviceNumber {
		t.Errorf("DeviceNumber = %d, want %d", cfg.DeviceNumber, defaultDeviceNumber)
	}
	if cfg.IdleTimeout != defaultIdleTimeout {
		t.Errorf("IdleTimeout = %s, want %s", cfg.IdleTimeout, defaultIdleTimeout)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.FindDetails {
		t.Error("FindDetails default = true, want false")
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("BEATLINK_DEVICE_NUMBER", "7")
	t.Setenv("BEATLINK_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DeviceNumber != 7 {
		t.Errorf("DeviceNumber = %d, want 7", cfg.DeviceNumber)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("BEATLINK_DEVICE_NUMBER", "7")
	t.Setenv("BEATLINK_LOG_LEVEL", "debug")

	cfg, err := Load([]string{"--device-number", "9", "--log-level", "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DeviceNumber != 9 {
		t.Errorf("DeviceNumber = %d, want 9 (CLI should override env)", cfg.DeviceNumber)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidDeviceNumber(t *testing.T) {
	clearEnv(t)
	if _, err := Load([]string{"--device-number", "999"}); err == nil {
		t.Fatal("expected error for invalid device number, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	if _, err := Load([]string{"--log-level", "verbose"}); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateBadReconnectBurst(t *testing.T) {
	clearEnv(t)
	if _, err := Load([]string{"--reconnect-burst", "0"}); err == nil {
		t.Fatal("expected error for non-positive reconnect burst")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
