// Package session runs the reactor that ties the stream connection, the
// message protocol and audio playback together.
//
// A single goroutine owns the playback state (speaking flag and status) and
// the [playback.Scheduler]. Everything else (the transport read loop, the
// decode worker and the audio device) only posts [Event] values into the
// reactor's inbox, so no lock guards the state and events are handled in the
// order they were posted.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/earshot/internal/feedback"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/protocol"
	"github.com/MrWong99/earshot/internal/transport"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/playback"
	"github.com/MrWong99/earshot/pkg/audio/wav"
)

const defaultInboxSize = 256

// Config tunes a [Session].
type Config struct {
	// BotTag is the recipient tag; empty selects [protocol.DefaultBotTag].
	BotTag string

	// SampleRate is the rate of incoming fragments. Defaults to
	// [audio.FragmentSampleRate].
	SampleRate int

	// DecodeQueue bounds the number of fragments awaiting decode.
	DecodeQueue int

	// InboxSize bounds the number of posted, unhandled events. Posting to a
	// full inbox blocks the poster.
	InboxSize int
}

// Option configures a [Session].
type Option func(*Session)

// WithMetrics records session metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is the reactor. Create it with [New], connect its [Session.Listener]
// to a transport and call [Session.Run].
type Session struct {
	cfg        Config
	indicator  feedback.Indicator
	metrics    *observe.Metrics
	logger     *slog.Logger
	dispatcher *protocol.Dispatcher
	pipeline   *playback.Pipeline
	sched      *playback.Scheduler

	inbox   chan Event
	stopped chan struct{}

	dropLog rate.Sometimes

	// Owned by the reactor goroutine.
	status   feedback.Status
	speaking bool
	open     bool
	ctx      context.Context
}

// New returns a Session that plays through out, decodes with dec and reports
// visible state to ind.
func New(cfg Config, out playback.Output, dec playback.Decoder, ind feedback.Indicator, opts ...Option) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.FragmentSampleRate
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}

	s := &Session{
		cfg:       cfg,
		indicator: ind,
		sched:     playback.NewScheduler(out),
		inbox:     make(chan Event, cfg.InboxSize),
		stopped:   make(chan struct{}),
		dropLog:   rate.Sometimes{First: 5, Interval: 10 * time.Second},
		status:    feedback.StatusDisconnected,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "session")
	}

	s.dispatcher = protocol.NewDispatcher(cfg.BotTag, handler{s})
	s.pipeline = playback.NewPipeline(dec, cfg.DecodeQueue, func(r playback.Result) {
		s.post(DecodeCompleted{Result: r})
	})
	return s
}

// Listener returns a [transport.Listener] that posts transport callbacks into
// the reactor.
func (s *Session) Listener() transport.Listener {
	return listener{s}
}

// Run starts the decode worker and the reactor loop and blocks until ctx is
// cancelled. Events posted after Run returns are discarded.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pipeline.Run(gctx) })
	g.Go(func() error { return s.loop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Flush blocks until every event posted before the call has been handled.
func (s *Session) Flush(ctx context.Context) error {
	b := barrier{done: make(chan struct{})}
	select {
	case s.inbox <- b:
	case <-s.stopped:
		return errors.New("session: stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-b.done:
		return nil
	case <-s.stopped:
		return errors.New("session: stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers ev to the reactor. It must never be called from the reactor
// goroutine itself.
func (s *Session) post(ev Event) {
	select {
	case s.inbox <- ev:
	case <-s.stopped:
	}
}

func (s *Session) loop(ctx context.Context) error {
	defer close(s.stopped)
	s.ctx = ctx

	s.indicator.SetConnectivity(s.status)
	s.indicator.SetWaveActivity(false, feedback.ModeListening)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev Event) {
	switch ev := ev.(type) {
	case TransportOpened:
		s.open = true
		s.metrics.RecordConnectionAttempt(s.ctx, true)
		s.setStatus(feedback.StatusConnected)

	case TransportClosed:
		if !s.open {
			s.metrics.RecordConnectionAttempt(s.ctx, false)
		}
		s.open = false
		if s.speaking {
			s.speaking = false
			s.indicator.SetWaveActivity(false, feedback.ModeSpeaking)
		}
		s.setStatus(feedback.StatusDisconnected)

	case MessageReceived:
		env, res := s.dispatcher.Dispatch(ev.Data)
		s.metrics.RecordMessage(s.ctx, env.Kind().String(), res.String())

	case DecodeCompleted:
		s.schedule(ev.Result)

	case PlaybackEnded:
		if !s.speaking {
			s.indicator.SetWaveActivity(false, feedback.ModeListening)
		}

	case barrier:
		close(ev.done)
	}
}

func (s *Session) setStatus(st feedback.Status) {
	s.status = st
	s.indicator.SetConnectivity(st)
	s.metrics.ConnectionState.Record(s.ctx, int64(st))
}

func (s *Session) onStatus(connected bool) {
	if connected {
		s.setStatus(feedback.StatusConnected)
	} else {
		s.setStatus(feedback.StatusDisconnected)
	}
}

func (s *Session) onSpeaking(on bool) {
	s.speaking = on
	if on {
		s.setStatus(feedback.StatusSpeaking)
		s.indicator.SetWaveActivity(true, feedback.ModeSpeaking)
		next := s.sched.Reset()
		s.logger.Debug("speaking started, schedule reset", "next_free", next)
		return
	}
	s.setStatus(feedback.StatusConnected)
	s.indicator.SetWaveActivity(false, feedback.ModeSpeaking)
}

func (s *Session) onAudio(data string) {
	s.metrics.FragmentsReceived.Add(s.ctx, 1)
	if !s.speaking {
		s.indicator.SetWaveActivity(true, feedback.ModeListening)
	}

	pcm, err := wav.DecodeFragment(data)
	if err != nil {
		reason := observe.DropBadBase64
		if errors.Is(err, wav.ErrEmptyFragment) {
			reason = observe.DropEmpty
		}
		s.drop(reason, err)
		return
	}

	if _, err := s.pipeline.Submit(wav.BuildContainer(pcm, s.cfg.SampleRate)); err != nil {
		s.drop(observe.DropQueueFull, err)
	}
}

// schedule places a decoded unit on the output. Failed decodes and rejected
// units leave the schedule untouched.
func (s *Session) schedule(r playback.Result) {
	s.metrics.DecodeDuration.Record(s.ctx, r.Elapsed.Seconds())
	if r.Err != nil {
		s.drop(observe.DropDecode, r.Err)
		return
	}

	seq := r.Seq
	slot, err := s.sched.Schedule(r.Buffer, func() {
		s.post(PlaybackEnded{Seq: seq})
	})
	if err != nil {
		reason := observe.DropSchedule
		if errors.Is(err, playback.ErrOutputClosed) {
			reason = observe.DropOutputGone
		}
		s.drop(reason, err)
		return
	}
	s.metrics.ScheduleLag.Record(s.ctx, slot.Lag().Seconds())
	s.logger.Debug("unit scheduled",
		"seq", seq,
		"start", slot.Start,
		"end", slot.End,
		"lag", slot.Lag(),
	)
}

func (s *Session) drop(reason string, err error) {
	s.metrics.RecordFragmentDropped(s.ctx, reason)
	s.dropLog.Do(func() {
		s.logger.Warn("dropping audio fragment", "reason", reason, "err", err)
	})
}

// handler routes dispatcher callbacks to the reactor. The dispatcher runs on
// the reactor goroutine, so these calls act on state directly.
type handler struct{ s *Session }

func (h handler) OnStatus(connected bool) { h.s.onStatus(connected) }
func (h handler) OnAudio(data string)     { h.s.onAudio(data) }
func (h handler) OnSpeaking(on bool)      { h.s.onSpeaking(on) }

// listener turns transport callbacks into posted events.
type listener struct{ s *Session }

func (l listener) OnOpen()               { l.s.post(TransportOpened{}) }
func (l listener) OnMessage(data []byte) { l.s.post(MessageReceived{Data: data}) }
func (l listener) OnClose(err error)     { l.s.post(TransportClosed{Err: err}) }

var (
	_ protocol.Handler   = handler{}
	_ transport.Listener = listener{}
)
