package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by [ApplyEnv], highest precedence first
// within each group.
const (
	EnvOrgName       = "EARSHOT_ORG_NAME"
	EnvOrgNameLegacy = "ORG_NAME"
	EnvEndpoint      = "EARSHOT_ENDPOINT"
	EnvLogLevel      = "EARSHOT_LOG_LEVEL"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the environment using getenv (typically
// [os.Getenv]). EARSHOT_ORG_NAME wins over ORG_NAME.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvOrgNameLegacy); v != "" {
		cfg.Stream.OrgName = v
	}
	if v := getenv(EnvOrgName); v != "" {
		cfg.Stream.OrgName = v
	}
	if v := getenv(EnvEndpoint); v != "" {
		cfg.Stream.Endpoint = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Stream
	if cfg.Stream.Endpoint == "" {
		errs = append(errs, errors.New("stream.endpoint is required"))
	} else if u, err := url.Parse(cfg.Stream.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("stream.endpoint %q: %w", cfg.Stream.Endpoint, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("stream.endpoint %q must use ws:// or wss://", cfg.Stream.Endpoint))
	}
	if cfg.Stream.OrgName == "" {
		errs = append(errs, errors.New("stream.org_name is required"))
	}
	if cfg.Stream.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("stream.reconnect_delay %v must be positive", cfg.Stream.ReconnectDelay))
	}
	if cfg.Stream.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("stream.read_limit %d must not be negative", cfg.Stream.ReadLimit))
	}

	// Audio
	if !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: miniaudio, null", cfg.Audio.Backend))
	}
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.DeviceSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.device_sample_rate %d must not be negative", cfg.Audio.DeviceSampleRate))
	}
	if cfg.Audio.PeriodMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.period_ms %d must be positive", cfg.Audio.PeriodMs))
	}
	if cfg.Audio.DecodeQueue <= 0 {
		errs = append(errs, fmt.Errorf("audio.decode_queue %d must be positive", cfg.Audio.DecodeQueue))
	}

	return errors.Join(errs...)
}
