// Package feedback defines the interface through which the session reports
// visible state (connectivity and wave activity) and ships a few
// implementations: a structured-log indicator, a snapshot holder for the
// HTTP status endpoint, and a fan-out.
package feedback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status is the externally visible connectivity/activity state.
type Status int

const (
	// StatusDisconnected means no stream connection is open.
	StatusDisconnected Status = iota

	// StatusConnected means the stream is open and the remote side is idle.
	StatusConnected

	// StatusSpeaking means the remote side is producing speech.
	StatusSpeaking
)

// String returns the lowercase name used in logs and JSON.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = StatusDisconnected
	case "connected":
		*s = StatusConnected
	case "speaking":
		*s = StatusSpeaking
	default:
		return fmt.Errorf("feedback: unknown status %q", b)
	}
	return nil
}

// Mode selects the wave animation style.
type Mode string

const (
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

// Indicator receives visual state notifications. Implementations must not
// block and must not call back into the session.
type Indicator interface {
	SetConnectivity(s Status)
	SetWaveActivity(active bool, mode Mode)
}

// ── Log ──────────────────────────────────────────────────────────────────────

// Log is an [Indicator] that writes every transition to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// SetConnectivity implements [Indicator].
func (l Log) SetConnectivity(s Status) {
	l.logger().Info("status indicator", "status", s.String())
}

// SetWaveActivity implements [Indicator].
func (l Log) SetWaveActivity(active bool, mode Mode) {
	l.logger().Debug("wave activity", "active", active, "mode", string(mode))
}

// ── Snapshot ─────────────────────────────────────────────────────────────────

// State is a point-in-time copy of everything an [Indicator] has been told.
type State struct {
	Status    Status    `json:"status"`
	WaveOn    bool      `json:"wave_active"`
	WaveMode  Mode      `json:"wave_mode,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is an [Indicator] that remembers the latest state. It is safe for
// concurrent use; the zero value reports a disconnected, idle state.
type Snapshot struct {
	mu    sync.RWMutex
	state State
}

// SetConnectivity implements [Indicator].
func (s *Snapshot) SetConnectivity(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = st
	s.state.UpdatedAt = time.Now()
}

// SetWaveActivity implements [Indicator]. Clearing activity also clears the
// mode.
func (s *Snapshot) SetWaveActivity(active bool, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.WaveOn = active
	s.state.WaveMode = ""
	if active {
		s.state.WaveMode = mode
	}
	s.state.UpdatedAt = time.Now()
}

// State returns the latest state.
func (s *Snapshot) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ── Multi ────────────────────────────────────────────────────────────────────

// Multi forwards every notification to each indicator in order.
type Multi []Indicator

// SetConnectivity implements [Indicator].
func (m Multi) SetConnectivity(s Status) {
	for _, ind := range m {
		ind.SetConnectivity(s)
	}
}

// SetWaveActivity implements [Indicator].
func (m Multi) SetWaveActivity(active bool, mode Mode) {
	for _, ind := range m {
		ind.SetWaveActivity(active, mode)
	}
}
