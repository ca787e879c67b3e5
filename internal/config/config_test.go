package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Stream.BotType != "scooby" {
		t.Errorf("BotType = %q, want scooby", cfg.Stream.BotType)
	}
	if cfg.Stream.OrgName != "default" {
		t.Errorf("OrgName = %q, want default", cfg.Stream.OrgName)
	}
	if cfg.Stream.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.Stream.ReconnectDelay)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", cfg.Audio.SampleRate)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		valid bool
		slog  slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
		{"", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.valid {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.valid)
		}
		if got := tt.level.Slog(); got != tt.slog {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.level, got, tt.slog)
		}
	}
}

func TestOutputSampleRate(t *testing.T) {
	t.Parallel()

	a := config.AudioConfig{SampleRate: 24000}
	if got := a.OutputSampleRate(); got != 24000 {
		t.Errorf("OutputSampleRate() = %d, want 24000", got)
	}
	a.DeviceSampleRate = 48000
	if got := a.OutputSampleRate(); got != 48000 {
		t.Errorf("OutputSampleRate() = %d, want 48000", got)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	old := config.Default()

	t.Run("identical", func(t *testing.T) {
		t.Parallel()
		if d := config.Diff(old, config.Default()); !d.Empty() {
			t.Errorf("Diff of equal configs = %+v, want empty", d)
		}
	})

	t.Run("log level only", func(t *testing.T) {
		t.Parallel()
		next := config.Default()
		next.Server.LogLevel = config.LogDebug

		d := config.Diff(old, next)
		if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
			t.Errorf("Diff = %+v, want log level change to debug", d)
		}
		if len(d.RestartRequired) != 0 {
			t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
		}
	})

	t.Run("restart required", func(t *testing.T) {
		t.Parallel()
		next := config.Default()
		next.Stream.OrgName = "acme"
		next.Audio.Backend = config.BackendNull

		d := config.Diff(old, next)
		if d.LogLevelChanged {
			t.Error("LogLevelChanged = true, want false")
		}
		want := []string{"stream", "audio"}
		if len(d.RestartRequired) != len(want) {
			t.Fatalf("RestartRequired = %v, want %v", d.RestartRequired, want)
		}
		for i := range want {
			if d.RestartRequired[i] != want[i] {
				t.Errorf("RestartRequired[%d] = %q, want %q", i, d.RestartRequired[i], want[i])
			}
		}
	})
}
