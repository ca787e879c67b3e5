// Package transport owns the stream connection lifecycle: dial, receive,
// detect failure and reconnect after a fixed delay, indefinitely.
//
// The [Manager] is an explicit state machine:
//
//	Idle → Connecting → Open → WaitingToRetry → Connecting → …
//	                 ↘ (dial failed) ↗
//
// It runs in a single goroutine, so there is never more than one live
// connection and never more than one pending retry timer. A new dial is only
// issued after the previous connection has been fully closed. Nothing is
// buffered or replayed across a reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earshot/internal/observe"
)

// Default connection parameters.
const (
	DefaultReconnectDelay    = 3 * time.Second
	DefaultKeepaliveInterval = 20 * time.Second
	DefaultDialTimeout       = 10 * time.Second

	keepaliveTimeout = 5 * time.Second
)

// ErrNotConnected is returned by [Manager.Send] while no connection is open.
var ErrNotConnected = errors.New("transport: not connected")

// State is the lifecycle state of a [Manager].
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateWaitingToRetry
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaitingToRetry:
		return "waiting_to_retry"
	default:
		return "unknown"
	}
}

// Conn is one established stream connection.
type Conn interface {
	// Read blocks until the next text or binary message arrives.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one text message.
	Write(ctx context.Context, data []byte) error

	// Ping sends a ping and waits for the pong. A concurrent Read must be
	// in progress for the pong to be received.
	Ping(ctx context.Context) error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer establishes connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Listener receives connection events. Calls are made from the Manager's
// goroutine, in order; implementations should hand work off quickly.
type Listener interface {
	// OnOpen is called once a connection is established.
	OnOpen()

	// OnMessage is called for every received message, verbatim.
	OnMessage(data []byte)

	// OnClose is called after a connection closed or a dial failed. err is
	// the cause, or nil when the context was cancelled.
	OnClose(err error)
}

// Config configures a [Manager].
type Config struct {
	// URL is the stream endpoint. Required.
	URL string

	// ReconnectDelay is the fixed wait between a close and the next dial.
	// Defaults to 3s.
	ReconnectDelay time.Duration

	// KeepaliveInterval is the ping period on an open connection. Zero
	// selects 20s; a negative value disables pings.
	KeepaliveInterval time.Duration

	// DialTimeout bounds a single dial. Defaults to 10s.
	DialTimeout time.Duration

	// Dialer defaults to a [WebSocketDialer].
	Dialer Dialer
}

// Manager maintains one logical connection to the stream endpoint.
type Manager struct {
	cfg      Config
	listener Listener
	logger   *slog.Logger

	state    atomic.Int32
	attempts atomic.Int64

	mu     sync.Mutex
	conn   Conn
	connID string
}

// NewManager returns a Manager for cfg reporting to l.
func NewManager(cfg Config, l Listener) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebSocketDialer{}
	}
	return &Manager{
		cfg:      cfg,
		listener: l,
		logger:   slog.Default().With("component", "transport", "url", cfg.URL),
	}
}

// URL joins a stream endpoint and a caller identifier into the address of
// that caller's stream, e.g. ("wss://host/ws", "acme") → "wss://host/ws/acme".
func URL(endpoint, identifier string) string {
	return strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(identifier)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Attempts returns the number of dials issued so far.
func (m *Manager) Attempts() int64 {
	return m.attempts.Load()
}

// Run connects and keeps reconnecting until ctx is cancelled, then returns
// ctx.Err(). Run must be called at most once.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setState(StateIdle)

	for {
		m.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.setState(StateWaitingToRetry)
		m.logger.Info("reconnecting after delay", "delay", m.cfg.ReconnectDelay)

		timer := time.NewTimer(m.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Send writes data as one text message on the open connection.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil || m.State() != StateOpen {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// connectOnce dials, pumps messages until the connection fails and closes
// it. It returns once the connection is fully torn down.
func (m *Manager) connectOnce(ctx context.Context) {
	connID := uuid.NewString()
	attempt := m.attempts.Add(1)
	log := m.logger.With("connection_id", connID)

	m.setState(StateConnecting)
	log.Info("connecting", "attempt", attempt)

	dialCtx, span := observe.StartSpan(ctx, "stream.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connection_id", connID),
			attribute.Int64("attempt", attempt),
		),
	)
	dialCtx, cancelDial := context.WithTimeout(dialCtx, m.cfg.DialTimeout)
	conn, err := m.cfg.Dialer.Dial(dialCtx, m.cfg.URL)
	cancelDial()
	if err != nil {
		observe.EndSpan(span, err)
		log.Warn("connect failed", "attempt", attempt, "err", err)
		m.listener.OnClose(closeCause(ctx, err))
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.connID = connID
	m.mu.Unlock()

	observe.EndSpan(span, nil)

	m.setState(StateOpen)
	log.Info("connection open", "attempt", attempt)
	m.listener.OnOpen()

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if m.cfg.KeepaliveInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.keepalive(connCtx, conn, log)
		}()
	}

	var readErr error
	for {
		data, err := conn.Read(connCtx)
		if err != nil {
			readErr = err
			break
		}
		m.listener.OnMessage(data)
	}

	cancel()
	wg.Wait()
	_ = conn.Close()

	m.mu.Lock()
	m.conn = nil
	m.connID = ""
	m.mu.Unlock()

	cause := closeCause(ctx, readErr)
	if cause != nil {
		log.Warn("connection closed", "err", cause)
	} else {
		log.Info("connection closed")
	}
	m.listener.OnClose(cause)
}

// keepalive pings conn until ctx is done. A failed ping closes the
// connection, which ends the read loop.
func (m *Manager) keepalive(ctx context.Context, conn Conn, log *slog.Logger) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepaliveTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Warn("keepalive ping failed", "err", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) != s {
		m.logger.Debug("transport state", "state", s.String())
	}
}

// closeCause hides errors that merely reflect the caller cancelling ctx.
func closeCause(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
