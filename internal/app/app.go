// Package app wires the earshot subsystems into a running application.
//
// New builds everything from the config (audio output, session reactor,
// stream connection and the HTTP probe server), Run executes them as one
// goroutine group, and Shutdown tears the remainder down in order.
//
// For testing, inject doubles via functional options (WithOutput,
// WithDialer, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/feedback"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/session"
	"github.com/MrWong99/earshot/internal/transport"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/miniaudio"
	"github.com/MrWong99/earshot/pkg/audio/playback"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	snapshot *feedback.Snapshot
	extra    []feedback.Indicator

	out         playback.Output
	backend     string
	outputReady atomic.Bool

	dialer  transport.Dialer
	streams *transport.Manager
	sess    *session.Session

	ln      net.Listener
	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOutput injects an audio output instead of opening one from config.
func WithOutput(out playback.Output) Option {
	return func(a *App) { a.out = out }
}

// WithDialer injects the stream dialer.
func WithDialer(d transport.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the log level of a running
// process.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithIndicator adds an indicator that receives every feedback transition.
func WithIndicator(ind feedback.Indicator) Option {
	return func(a *App) { a.extra = append(a.extra, ind) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It opens the audio
// output and binds the HTTP listener, so device and address errors surface
// here rather than in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		snapshot: &feedback.Snapshot{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Audio output ─────────────────────────────────────────────────
	if err := a.initOutput(); err != nil {
		return nil, fmt.Errorf("app: init audio output: %w", err)
	}

	// ── 2. Session reactor ──────────────────────────────────────────────
	indicators := feedback.Multi{feedback.Log{}, a.snapshot}
	indicators = append(indicators, a.extra...)
	a.sess = session.New(session.Config{
		BotTag:      cfg.Stream.BotType,
		SampleRate:  cfg.Audio.SampleRate,
		DecodeQueue: cfg.Audio.DecodeQueue,
	},
		a.out,
		playback.WAVDecoder{SampleRate: a.out.Format().SampleRate},
		indicators,
		session.WithMetrics(a.metrics),
	)

	// ── 3. Stream connection ────────────────────────────────────────────
	if a.dialer == nil {
		a.dialer = transport.WebSocketDialer{ReadLimit: cfg.Stream.ReadLimit}
	}
	a.streams = transport.NewManager(transport.Config{
		URL:               transport.URL(cfg.Stream.Endpoint, cfg.Stream.OrgName),
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
		KeepaliveInterval: cfg.Stream.KeepaliveInterval,
		Dialer:            a.dialer,
	}, a.sess.Listener())

	// ── 4. HTTP server ──────────────────────────────────────────────────
	if err := a.initHTTP(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	slog.Info("app initialised",
		"stream", transport.URL(cfg.Stream.Endpoint, cfg.Stream.OrgName),
		"bot_type", cfg.Stream.BotType,
		"audio_backend", a.backend,
		"output_rate", a.out.Format().SampleRate,
	)
	return a, nil
}

func (a *App) initOutput() error {
	if a.out != nil {
		a.backend = "injected"
	} else {
		switch a.cfg.Audio.Backend {
		case config.BackendNull:
			a.out = playback.NewVirtualOutput(formatFor(a.cfg.Audio))
		default:
			dev, err := miniaudio.Open(miniaudio.Config{
				SampleRate: a.cfg.Audio.OutputSampleRate(),
				PeriodMs:   a.cfg.Audio.PeriodMs,
			})
			if err != nil {
				return fmt.Errorf("open miniaudio device (set audio.backend: null to run without a sound card): %w", err)
			}
			a.out = dev
		}
		a.backend = string(a.cfg.Audio.Backend)
	}

	if c, ok := a.out.(io.Closer); ok {
		a.closers = append(a.closers, func() error {
			a.outputReady.Store(false)
			return c.Close()
		})
	}
	a.outputReady.Store(true)
	return nil
}

func (a *App) initHTTP(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.ln = ln

	mux := http.NewServeMux()
	health.New(
		health.Checker{Name: "stream", Check: a.checkStream},
		health.Checker{Name: "audio", Check: a.checkOutput},
	).WithStatus(func() any { return a.Status() }).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Addr returns the bound HTTP address, or nil when the server is disabled.
func (a *App) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *App) checkStream(context.Context) error {
	if st := a.streams.State(); st != transport.StateOpen {
		return fmt.Errorf("stream %s", st)
	}
	return nil
}

func (a *App) checkOutput(context.Context) error {
	if !a.outputReady.Load() {
		return errors.New("audio output closed")
	}
	return nil
}

// ─── Status ──────────────────────────────────────────────────────────────────

// Status is the document served on /status.
type Status struct {
	feedback.State

	Stream StreamStatus `json:"stream"`
	Audio  AudioStatus  `json:"audio"`
}

// StreamStatus describes the stream connection.
type StreamStatus struct {
	URL      string `json:"url"`
	BotType  string `json:"bot_type"`
	State    string `json:"state"`
	Attempts int64  `json:"attempts"`
}

// AudioStatus describes the playback output.
type AudioStatus struct {
	Backend    string  `json:"backend"`
	SampleRate int     `json:"sample_rate"`
	ClockSec   float64 `json:"clock_seconds"`
}

// Status returns a point-in-time view of the running application.
func (a *App) Status() Status {
	return Status{
		State: a.snapshot.State(),
		Stream: StreamStatus{
			URL:      transport.URL(a.cfg.Stream.Endpoint, a.cfg.Stream.OrgName),
			BotType:  a.cfg.Stream.BotType,
			State:    a.streams.State().String(),
			Attempts: a.streams.Attempts(),
		},
		Audio: AudioStatus{
			Backend:    a.backend,
			SampleRate: a.out.Format().SampleRate,
			ClockSec:   a.out.Now().Seconds(),
		},
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the session reactor, the stream connection and the HTTP server
// and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.sess.Run(gctx) })
	g.Go(func() error {
		if err := a.streams.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.ln.Addr().String())
			if err := a.httpSrv.Serve(a.ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running")
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the parts of a reloaded config that can change at
// runtime and logs the ones that need a restart.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "keys", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases resources that outlive Run, such as the audio device.
// Already-scheduled audio is cut off. Idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// formatFor returns the output format selected by cfg.
func formatFor(cfg config.AudioConfig) audio.Format {
	return audio.Format{SampleRate: cfg.OutputSampleRate(), Channels: audio.FragmentChannels}
}
