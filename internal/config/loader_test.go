package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
)

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	const yaml = `
server:
  listen_addr: ":8081"
  log_level: debug
stream:
  endpoint: wss://stream.example/ws
  org_name: acme
  reconnect_delay: 500ms
audio:
  backend: "null"
  device_sample_rate: 48000
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8081" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Stream.Endpoint != "wss://stream.example/ws" || cfg.Stream.OrgName != "acme" {
		t.Errorf("Stream = %+v", cfg.Stream)
	}
	if cfg.Stream.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 500ms", cfg.Stream.ReconnectDelay)
	}
	if cfg.Audio.Backend != config.BackendNull || cfg.Audio.DeviceSampleRate != 48000 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}

	// Keys absent from the document keep their defaults.
	if cfg.Stream.BotType != config.DefaultBotType {
		t.Errorf("BotType = %q, want default %q", cfg.Stream.BotType, config.DefaultBotType)
	}
	if cfg.Stream.KeepaliveInterval != config.DefaultKeepaliveInterval {
		t.Errorf("KeepaliveInterval = %v, want default", cfg.Stream.KeepaliveInterval)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("SampleRate = %d, want default", cfg.Audio.SampleRate)
	}
}

func TestLoadFromReader_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Stream.Endpoint != config.DefaultEndpoint {
		t.Errorf("Endpoint = %q, want default", cfg.Stream.Endpoint)
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("stream:\n  org: acme\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "decode yaml") {
		t.Errorf("error = %v, want a decode error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr []string
	}{
		{
			name:   "defaults",
			mutate: func(*config.Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "loud" },
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "http endpoint",
			mutate:  func(c *config.Config) { c.Stream.Endpoint = "http://stream.example/ws" },
			wantErr: []string{"ws:// or wss://"},
		},
		{
			name:    "missing endpoint and org",
			mutate: func(c *config.Config) {
				c.Stream.Endpoint = ""
				c.Stream.OrgName = ""
			},
			wantErr: []string{"stream.endpoint is required", "stream.org_name is required"},
		},
		{
			name:    "zero reconnect delay",
			mutate:  func(c *config.Config) { c.Stream.ReconnectDelay = 0 },
			wantErr: []string{"stream.reconnect_delay"},
		},
		{
			name: "bad audio",
			mutate: func(c *config.Config) {
				c.Audio.Backend = "pulse"
				c.Audio.SampleRate = 0
				c.Audio.PeriodMs = -1
				c.Audio.DecodeQueue = 0
			},
			wantErr: []string{"audio.backend", "audio.sample_rate", "audio.period_ms", "audio.decode_queue"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)

			err := config.Validate(cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate: expected errors %v, got nil", tt.wantErr)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing file yields defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Stream.OrgName != config.DefaultOrgName {
			t.Errorf("OrgName = %q, want default", cfg.Stream.OrgName)
		}
	})

	t.Run("invalid file names the path", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "earshot.yaml")
		writeFile(t, path, "audio:\n  backend: pulse\n")

		_, err := config.Load(path)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), path) {
			t.Errorf("error %q does not name %q", err, path)
		}
	})

	t.Run("unreadable path", func(t *testing.T) {
		t.Parallel()
		_, err := config.Load(t.TempDir()) // a directory
		if err == nil {
			t.Fatal("expected error reading a directory, got nil")
		}
		if errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want a read error", err)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		wantOrg string
	}{
		{"none", nil, "from-config"},
		{"legacy", map[string]string{"ORG_NAME": "legacy"}, "legacy"},
		{"prefixed", map[string]string{"EARSHOT_ORG_NAME": "prefixed"}, "prefixed"},
		{"prefixed wins", map[string]string{"ORG_NAME": "legacy", "EARSHOT_ORG_NAME": "prefixed"}, "prefixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Stream.OrgName = "from-config"
			config.ApplyEnv(cfg, func(k string) string { return tt.env[k] })
			if cfg.Stream.OrgName != tt.wantOrg {
				t.Errorf("OrgName = %q, want %q", cfg.Stream.OrgName, tt.wantOrg)
			}
		})
	}

	cfg := config.Default()
	config.ApplyEnv(cfg, func(k string) string {
		return map[string]string{
			"EARSHOT_ENDPOINT":  "wss://other/ws",
			"EARSHOT_LOG_LEVEL": "warn",
		}[k]
	})
	if cfg.Stream.Endpoint != "wss://other/ws" {
		t.Errorf("Endpoint = %q", cfg.Stream.Endpoint)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
}
