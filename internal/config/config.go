// Package config provides the configuration schema and loader for earshot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AudioBackend selects the playback output.
type AudioBackend string

const (
	// BackendMiniaudio plays through the system audio device.
	BackendMiniaudio AudioBackend = "miniaudio"

	// BackendNull discards audio against a wall-clock timeline. Useful on
	// hosts without a sound card.
	BackendNull AudioBackend = "null"
)

// IsValid reports whether b is a recognised backend.
func (b AudioBackend) IsValid() bool {
	return b == BackendMiniaudio || b == BackendNull
}

// Defaults applied by [Default].
const (
	DefaultListenAddr        = ":9090"
	DefaultEndpoint          = "ws://localhost:8000/ws"
	DefaultOrgName           = "default"
	DefaultBotType           = "scooby"
	DefaultReconnectDelay    = 3 * time.Second
	DefaultKeepaliveInterval = 20 * time.Second
	DefaultReadLimit         = 1 << 20
	DefaultSampleRate        = 24000
	DefaultPeriodMs          = 20
	DefaultDecodeQueue       = 64
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Audio  AudioConfig  `yaml:"audio"`
}

// ServerConfig holds the HTTP probe/metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz, /status and
	// /metrics. Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Applied live on config reload.
	LogLevel LogLevel `yaml:"log_level"`
}

// StreamConfig describes the audio stream connection.
type StreamConfig struct {
	// Endpoint is the ws:// or wss:// base address. The organization name is
	// appended as the last path segment.
	Endpoint string `yaml:"endpoint"`

	// OrgName identifies whose stream to join.
	OrgName string `yaml:"org_name"`

	// BotType is the recipient tag. Messages carrying a different, non-empty
	// bot_type are ignored. Empty selects the default tag.
	BotType string `yaml:"bot_type"`

	// ReconnectDelay is the fixed wait before redialling after a close.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// KeepaliveInterval is the ping period. Negative disables pings.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// ReadLimit caps the size of a single message in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

// AudioConfig selects and tunes the playback output.
type AudioConfig struct {
	// Backend is "miniaudio" (default) or "null".
	Backend AudioBackend `yaml:"backend"`

	// SampleRate is the sample rate of incoming fragments.
	SampleRate int `yaml:"sample_rate"`

	// DeviceSampleRate is the output device rate. Zero plays at SampleRate.
	DeviceSampleRate int `yaml:"device_sample_rate"`

	// PeriodMs is the device callback period in milliseconds.
	PeriodMs int `yaml:"period_ms"`

	// DecodeQueue is the maximum number of fragments awaiting decode.
	DecodeQueue int `yaml:"decode_queue"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Stream: StreamConfig{
			Endpoint:          DefaultEndpoint,
			OrgName:           DefaultOrgName,
			BotType:           DefaultBotType,
			ReconnectDelay:    DefaultReconnectDelay,
			KeepaliveInterval: DefaultKeepaliveInterval,
			ReadLimit:         DefaultReadLimit,
		},
		Audio: AudioConfig{
			Backend:     BackendMiniaudio,
			SampleRate:  DefaultSampleRate,
			PeriodMs:    DefaultPeriodMs,
			DecodeQueue: DefaultDecodeQueue,
		},
	}
}

// OutputSampleRate is the rate the output device runs at.
func (a AudioConfig) OutputSampleRate() int {
	if a.DeviceSampleRate > 0 {
		return a.DeviceSampleRate
	}
	return a.SampleRate
}
